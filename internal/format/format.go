// Package format renders Phabricator objects and feedback reports as plain
// text for tool results.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qiniu/phabmcp/pkg/models"
)

const (
	maxHunksPerFile = 3
	maxLinesPerHunk = 10
)

// TaskDetails renders a task with its comment stream.
func TaskDetails(task *models.Task, comments []models.RawComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task T%d: %s\n", task.ID, task.Title)
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	fmt.Fprintf(&b, "Priority: %s\n\n", task.Priority)
	fmt.Fprintf(&b, "Description:\n%s", task.Description)

	if len(comments) > 0 {
		fmt.Fprintf(&b, "\n\nComments:\n%s", Comments(comments))
	}
	return b.String()
}

// RevisionDetails renders a revision with its comment stream.
func RevisionDetails(revision *models.Revision, comments []models.RawComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revision D%d: %s\n", revision.ID, revision.Title)
	fmt.Fprintf(&b, "Status: %s\n", revision.Status)
	fmt.Fprintf(&b, "Author: %s\n\n", revision.AuthorPHID)
	fmt.Fprintf(&b, "Summary:\n%s", revision.Summary)

	if len(comments) > 0 {
		fmt.Fprintf(&b, "\n\nComments:\n%s", Comments(comments))
	}
	return b.String()
}

// Comments renders a comment stream. Review actions get explicit markers;
// inline comments show their anchor.
func Comments(comments []models.RawComment) string {
	if len(comments) == 0 {
		return "No comments"
	}

	var parts []string
	for _, comment := range comments {
		switch comment.Type {
		case models.CommentTypeAction:
			parts = append(parts, formatAction(comment))
		case models.CommentTypeInline:
			parts = append(parts, fmt.Sprintf("%s (inline %s:%d): %s",
				comment.Author, comment.Path, comment.Line, comment.Text))
		default:
			if comment.Text == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", comment.Author, comment.Text))
		}
	}

	if len(parts) == 0 {
		return "No comments"
	}
	return strings.Join(parts, "\n\n")
}

func formatAction(comment models.RawComment) string {
	var label string
	switch comment.Action {
	case "accept":
		label = "ACCEPTED"
	case "reject", "request-changes":
		label = "REQUESTED CHANGES"
	default:
		label = strings.ToUpper(comment.Action)
	}

	result := fmt.Sprintf("%s: %s", comment.Author, label)
	if comment.Text != "" {
		result += fmt.Sprintf("\n   Comment: %s", comment.Text)
	}
	return result
}

// CodeChanges renders parsed diff files, truncating long hunks so the
// output stays readable in a tool transcript.
func CodeChanges(files []models.DiffFile) string {
	if len(files) == 0 {
		return "No code changes"
	}

	var b strings.Builder
	for _, file := range files {
		fmt.Fprintf(&b, "MODIFIED: %s\n", file.Path)

		hunks := file.Hunks
		truncatedHunks := 0
		if len(hunks) > maxHunksPerFile {
			truncatedHunks = len(hunks) - maxHunksPerFile
			hunks = hunks[:maxHunksPerFile]
		}

		for _, hunk := range hunks {
			fmt.Fprintf(&b, "  %s\n", hunk.Header)

			lines := hunk.Lines
			truncatedLines := 0
			if len(lines) > maxLinesPerHunk {
				truncatedLines = len(lines) - maxLinesPerHunk
				lines = lines[:maxLinesPerHunk]
			}

			for _, line := range lines {
				switch line.Kind {
				case models.LineAdded:
					fmt.Fprintf(&b, "  +%s\n", line.Content)
				case models.LineRemoved:
					fmt.Fprintf(&b, "  -%s\n", line.Content)
				default:
					fmt.Fprintf(&b, "   %s\n", line.Content)
				}
			}
			if truncatedLines > 0 {
				fmt.Fprintf(&b, "  ... (%d more lines)\n", truncatedLines)
			}
		}
		if truncatedHunks > 0 {
			fmt.Fprintf(&b, "  ... and %d more hunks\n", truncatedHunks)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RevisionWithCode renders a revision, its discussion, and its code
// changes.
func RevisionWithCode(revision *models.Revision, comments []models.RawComment, files []models.DiffFile) string {
	var b strings.Builder
	b.WriteString(RevisionDetails(revision, comments))
	b.WriteString("\n\nCODE CHANGES:\n============\n")
	b.WriteString(CodeChanges(files))
	return b.String()
}

// ReviewFeedback renders a feedback report grouped by priority, with code
// context blocks and the generated action items.
func ReviewFeedback(report models.FeedbackReport) string {
	var b strings.Builder

	if report.Revision != nil {
		fmt.Fprintf(&b, "Review Feedback Analysis for D%d\n", report.Revision.ID)
		fmt.Fprintf(&b, "Title: %s\n", report.Revision.Title)
		fmt.Fprintf(&b, "Status: %s\n", report.Revision.Status)
	} else {
		b.WriteString("Review Feedback Analysis\n")
	}
	b.WriteString(strings.Repeat("=", 80) + "\n\n")
	b.WriteString(report.Summary + "\n")

	if len(report.ReviewFeedback) == 0 {
		b.WriteString("\nNo actionable review feedback found.")
		return b.String()
	}

	sections := []struct {
		title    string
		category models.Category
	}{
		{"ISSUES TO FIX", models.CategoryIssue},
		{"SUGGESTIONS", models.CategorySuggestion},
		{"NITS & STYLE", models.CategoryNit},
		{"OTHER FEEDBACK", models.CategoryOther},
	}

	for _, section := range sections {
		entries := entriesOf(report, section.category)
		if len(entries) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n%s (%d items)\n", section.title, len(entries))
		b.WriteString(strings.Repeat("=", len(section.title)) + "\n")
		for i, entry := range entries {
			fmt.Fprintf(&b, "\n%d. %s\n", i+1, feedbackItem(entry))
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	b.WriteString("ACTION ITEMS:\n")
	if len(report.ActionItems) == 0 {
		b.WriteString("- Review feedback received but no specific action items identified\n")
	}
	for _, item := range report.ActionItems {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	return strings.TrimRight(b.String(), "\n")
}

// FeedbackByFile renders a per-file index of classified comments. The
// "unattributed" bucket, when present, always comes last.
func FeedbackByFile(groups map[string][]models.ClassifiedComment) string {
	if len(groups) == 0 {
		return "No feedback by file"
	}

	var files []string
	for file := range groups {
		if file == models.UnattributedBucket {
			continue
		}
		files = append(files, file)
	}
	sort.Strings(files)
	if _, ok := groups[models.UnattributedBucket]; ok {
		files = append(files, models.UnattributedBucket)
	}

	var b strings.Builder
	b.WriteString("FEEDBACK BY FILE:\n")
	for _, file := range files {
		comments := groups[file]
		fmt.Fprintf(&b, "\n%s (%d comments)\n", file, len(comments))
		for _, comment := range comments {
			fmt.Fprintf(&b, "  [%s] %s\n", comment.Category, comment.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// entriesOf selects one category, entries with code context first so the
// directly actionable feedback leads each section.
func entriesOf(report models.FeedbackReport, category models.Category) []models.FeedbackEntry {
	var entries []models.FeedbackEntry
	for _, entry := range report.ReviewFeedback {
		if entry.Category == category {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CodeContext != nil && entries[j].CodeContext == nil
	})
	return entries
}

func feedbackItem(entry models.FeedbackEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", entry.Author, entry.Comment)

	context := entry.CodeContext
	if context == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "\n   Location: %s:%d\n", context.File, context.TargetLine)
	if context.HunkInfo != "" {
		fmt.Fprintf(&b, "   %s\n", context.HunkInfo)
	}
	b.WriteString("   " + strings.Repeat("-", 50) + "\n")
	for _, line := range context.Lines {
		marker := "    "
		suffix := ""
		if line.IsTarget {
			marker = ">>> "
			suffix = "  <- COMMENTED LINE"
		}
		fmt.Fprintf(&b, "   %s%4d | %s%s\n", marker, line.LineNumber, line.Content, suffix)
	}
	b.WriteString("   " + strings.Repeat("-", 50))
	return b.String()
}
