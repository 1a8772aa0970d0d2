// Package review implements the comment-to-code correlation engine: it maps
// review comments onto parsed diff content, classifies them by priority,
// and aggregates the result into a feedback report.
//
// Keyword-based correlation is a lexical heuristic with no precision
// guarantee. A miss only lowers the resolution confidence of a single
// comment; it never fails a tool call.
package review

import (
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Common words that match too much diff content to be useful anchors.
var stopwords = map[string]struct{}{
	"the": {}, "this": {}, "that": {}, "and": {}, "for": {}, "not": {},
	"with": {}, "you": {}, "are": {}, "was": {}, "were": {}, "will": {},
	"should": {}, "could": {}, "would": {}, "can": {}, "may": {},
	"have": {}, "has": {}, "had": {}, "here": {}, "there": {},
	"please": {}, "use": {}, "using": {}, "used": {}, "instead": {},
	"when": {}, "what": {}, "why": {}, "how": {}, "where": {},
	"all": {}, "any": {}, "but": {}, "than": {}, "then": {}, "from": {},
	"into": {}, "out": {}, "more": {}, "some": {}, "also": {}, "only": {},
	"just": {}, "like": {}, "need": {}, "needs": {}, "make": {},
	"makes": {}, "sure": {}, "does": {}, "doesn": {}, "don": {},
	"isn": {}, "its": {}, "it's": {}, "been": {}, "being": {},
	"very": {}, "else": {}, "other": {}, "same": {}, "such": {},
	"them": {}, "they": {}, "their": {}, "your": {}, "our": {},
	"fix": {}, "line": {}, "code": {}, "change": {}, "add": {},
	"remove": {}, "think": {}, "nit": {}, "maybe": {}, "consider": {},
}

// ExtractKeywords pulls identifier-like tokens out of free comment text:
// lowercased, at least three characters, stopwords dropped, deduplicated in
// first-seen order. Deterministic and side-effect free.
func ExtractKeywords(text string) []string {
	tokens := identifierPattern.FindAllString(text, -1)

	var keywords []string
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		word := strings.ToLower(token)
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}
