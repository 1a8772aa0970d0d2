package review

import (
	"strings"

	"github.com/qiniu/phabmcp/pkg/models"
)

// Default keyword lists. These are tuning, not contract: deployments can
// replace them through the review section of the config file.
var (
	DefaultIssueKeywords = []string{
		"bug", "broken", "error", "must fix", "blocker", "crash",
		"incorrect", "wrong", "fails", "failure", "issue", "problem",
		"security", "leak", "race condition", "regression",
	}
	DefaultSuggestionKeywords = []string{
		"consider", "suggest", "recommend", "could", "maybe", "perhaps",
		"might be better", "what about", "alternatively", "would prefer",
	}
	DefaultNitKeywords = []string{
		"nit:", "nit ", "typo", "style", "whitespace", "formatting",
		"spelling", "naming", "rename",
	}
)

// Classifier buckets comment text into a priority category using
// case-insensitive substring rules evaluated in fixed order:
// Issue > Suggestion > Nit. First match wins; no match is Other. The
// function is total and deterministic.
type Classifier struct {
	rules []classifierRule
}

type classifierRule struct {
	category models.Category
	keywords []string
}

// NewClassifier builds a classifier from the given keyword lists. An empty
// list falls back to the package default for that category.
func NewClassifier(issue, suggestion, nit []string) *Classifier {
	if len(issue) == 0 {
		issue = DefaultIssueKeywords
	}
	if len(suggestion) == 0 {
		suggestion = DefaultSuggestionKeywords
	}
	if len(nit) == 0 {
		nit = DefaultNitKeywords
	}

	return &Classifier{
		rules: []classifierRule{
			{category: models.CategoryIssue, keywords: lowerAll(issue)},
			{category: models.CategorySuggestion, keywords: lowerAll(suggestion)},
			{category: models.CategoryNit, keywords: lowerAll(nit)},
		},
	}
}

// Classify returns the category of a single comment text.
func (c *Classifier) Classify(text string) models.Category {
	lower := strings.ToLower(text)
	for _, rule := range c.rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}

// ClassifyAll annotates located comments with their category, preserving
// order.
func (c *Classifier) ClassifyAll(comments []models.LocatedComment) []models.ClassifiedComment {
	classified := make([]models.ClassifiedComment, 0, len(comments))
	for _, comment := range comments {
		classified = append(classified, models.ClassifiedComment{
			LocatedComment: comment,
			Category:       c.Classify(comment.Text),
		})
	}
	return classified
}

func lowerAll(keywords []string) []string {
	lowered := make([]string, len(keywords))
	for i, keyword := range keywords {
		lowered[i] = strings.ToLower(keyword)
	}
	return lowered
}
