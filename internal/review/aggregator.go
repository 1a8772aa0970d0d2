package review

import (
	"fmt"

	"github.com/qiniu/phabmcp/pkg/models"
)

const actionItemTextLimit = 80

// Aggregate assembles classified comments into the final feedback report.
// Pure function: no I/O, input order preserved in ReviewFeedback.
func Aggregate(revision *models.Revision, comments []models.ClassifiedComment) models.FeedbackReport {
	report := models.FeedbackReport{
		Revision:       revision,
		ReviewFeedback: make([]models.FeedbackEntry, 0, len(comments)),
		CategoryCounts: map[models.Category]int{
			models.CategoryIssue:      0,
			models.CategorySuggestion: 0,
			models.CategoryNit:        0,
			models.CategoryOther:      0,
		},
		TotalComments: len(comments),
	}

	for _, comment := range comments {
		entry := models.FeedbackEntry{
			Comment:     comment.Text,
			Author:      comment.Author,
			Type:        comment.Type,
			CodeContext: comment.Context,
			Confidence:  comment.Confidence,
			Category:    comment.Category,
		}

		if comment.Confidence != models.ConfidenceUnresolved {
			report.CommentsWithContext++
			file := comment.File
			line := comment.TargetLine
			entry.PrimaryFile = &file
			entry.PrimaryLine = &line
		}

		report.CategoryCounts[comment.Category]++

		if comment.Category == models.CategoryIssue || comment.Category == models.CategorySuggestion {
			report.ActionItems = append(report.ActionItems, actionItem(comment))
		}

		report.ReviewFeedback = append(report.ReviewFeedback, entry)
	}

	report.Summary = summarize(revision, report)
	return report
}

// actionItem renders one "<category>: <text> (<file>:<line>)" entry, with
// the comment text cut at 80 characters.
func actionItem(comment models.ClassifiedComment) string {
	text := comment.Text
	if len(text) > actionItemTextLimit {
		text = text[:actionItemTextLimit]
	}

	location := models.UnattributedBucket
	if comment.Confidence != models.ConfidenceUnresolved {
		location = fmt.Sprintf("%s:%d", comment.File, comment.TargetLine)
	}
	return fmt.Sprintf("%s: %s (%s)", comment.Category, text, location)
}

func summarize(revision *models.Revision, report models.FeedbackReport) string {
	subject := "revision"
	if revision != nil {
		subject = fmt.Sprintf("D%d", revision.ID)
	}
	return fmt.Sprintf(
		"Review feedback for %s: %d comments (%d issues, %d suggestions, %d nits, %d other), %d with code context, %d action items",
		subject,
		report.TotalComments,
		report.CategoryCounts[models.CategoryIssue],
		report.CategoryCounts[models.CategorySuggestion],
		report.CategoryCounts[models.CategoryNit],
		report.CategoryCounts[models.CategoryOther],
		report.CommentsWithContext,
		len(report.ActionItems),
	)
}

// GroupByFile buckets classified comments by their resolved file, with
// unresolved comments collected under the "unattributed" key. The JSON
// report keeps the flat ordered list; this feeds the per-file text index.
func GroupByFile(comments []models.ClassifiedComment) map[string][]models.ClassifiedComment {
	groups := make(map[string][]models.ClassifiedComment)
	for _, comment := range comments {
		key := models.UnattributedBucket
		if comment.Confidence != models.ConfidenceUnresolved {
			key = comment.File
		}
		groups[key] = append(groups[key], comment)
	}
	return groups
}
