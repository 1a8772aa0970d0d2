package format

import (
	"fmt"
	"strings"
	"testing"

	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskDetails(t *testing.T) {
	task := &models.Task{
		ID:          123,
		Title:       "Fix login timeout",
		Status:      "open",
		Priority:    "high",
		Description: "Sessions expire too early.",
	}
	comments := []models.RawComment{
		{Author: "PHID-USER-a", Text: "Reproduced on prod", Type: models.CommentTypeGeneral},
	}

	out := TaskDetails(task, comments)
	assert.Contains(t, out, "Task T123: Fix login timeout")
	assert.Contains(t, out, "Status: open")
	assert.Contains(t, out, "Priority: high")
	assert.Contains(t, out, "Sessions expire too early.")
	assert.Contains(t, out, "PHID-USER-a: Reproduced on prod")
}

func TestTaskDetailsWithoutComments(t *testing.T) {
	out := TaskDetails(&models.Task{ID: 1, Title: "t"}, nil)
	assert.NotContains(t, out, "Comments:")
}

func TestCommentsActionsAndInline(t *testing.T) {
	comments := []models.RawComment{
		{Author: "PHID-USER-a", Type: models.CommentTypeAction, Action: "accept"},
		{Author: "PHID-USER-b", Type: models.CommentTypeAction, Action: "request-changes", Text: "needs tests"},
		{Author: "PHID-USER-c", Type: models.CommentTypeInline, Path: "foo.py", Line: 3, Text: "Fix this issue"},
		{Author: "PHID-USER-d", Type: models.CommentTypeGeneral, Text: ""},
	}

	out := Comments(comments)
	assert.Contains(t, out, "PHID-USER-a: ACCEPTED")
	assert.Contains(t, out, "PHID-USER-b: REQUESTED CHANGES")
	assert.Contains(t, out, "Comment: needs tests")
	assert.Contains(t, out, "PHID-USER-c (inline foo.py:3): Fix this issue")
	// Empty general comments are dropped.
	assert.NotContains(t, out, "PHID-USER-d")
}

func TestCommentsEmpty(t *testing.T) {
	assert.Equal(t, "No comments", Comments(nil))
	assert.Equal(t, "No comments", Comments([]models.RawComment{
		{Type: models.CommentTypeGeneral, Text: ""},
	}))
}

func TestCodeChanges(t *testing.T) {
	files := []models.DiffFile{{
		Path: "foo.py",
		Hunks: []models.Hunk{{
			Header: "@@ -1,3 +1,4 @@",
			Lines: []models.DiffLine{
				{Kind: models.LineContext, Content: "def main():"},
				{Kind: models.LineAdded, Content: "    return broken_code"},
				{Kind: models.LineRemoved, Content: "    return x"},
			},
		}},
	}}

	out := CodeChanges(files)
	assert.Contains(t, out, "MODIFIED: foo.py")
	assert.Contains(t, out, "@@ -1,3 +1,4 @@")
	assert.Contains(t, out, "+    return broken_code")
	assert.Contains(t, out, "-    return x")
	assert.Contains(t, out, "   def main():")
}

func TestCodeChangesTruncation(t *testing.T) {
	var hunks []models.Hunk
	for i := 0; i < 5; i++ {
		var lines []models.DiffLine
		for j := 0; j < 15; j++ {
			lines = append(lines, models.DiffLine{
				Kind:    models.LineAdded,
				Content: fmt.Sprintf("line %d", j),
			})
		}
		hunks = append(hunks, models.Hunk{
			Header: fmt.Sprintf("@@ -%d,2 +%d,2 @@", i*20, i*20),
			Lines:  lines,
		})
	}

	out := CodeChanges([]models.DiffFile{{Path: "big.go", Hunks: hunks}})
	assert.Contains(t, out, "... (5 more lines)")
	assert.Contains(t, out, "... and 2 more hunks")
	// Truncated hunks should not be rendered at all.
	assert.NotContains(t, out, "@@ -60,2 +60,2 @@")
}

func TestCodeChangesEmpty(t *testing.T) {
	assert.Equal(t, "No code changes", CodeChanges(nil))
}

func feedbackReportFixture() models.FeedbackReport {
	file := "foo.py"
	line := 3
	return models.FeedbackReport{
		Revision: &models.Revision{ID: 42, Title: "Add widget flushing", Status: "needs-review"},
		ReviewFeedback: []models.FeedbackEntry{
			{
				Comment:    "Fix this issue",
				Author:     "PHID-USER-a",
				Type:       models.CommentTypeInline,
				Category:   models.CategoryIssue,
				Confidence: models.ConfidenceExplicit,
				PrimaryFile: &file,
				PrimaryLine: &line,
				CodeContext: &models.CodeContext{
					File:       "foo.py",
					TargetLine: 3,
					HunkInfo:   "@@ -1,3 +1,4 @@",
					Lines: []models.ContextLine{
						{LineNumber: 2, Content: "    x = compute()"},
						{LineNumber: 3, Content: "    return broken_code", IsTarget: true},
						{LineNumber: 4, Content: "    return x"},
					},
				},
			},
			{
				Comment:    "nit: rename variable",
				Author:     "PHID-USER-b",
				Type:       models.CommentTypeGeneral,
				Category:   models.CategoryNit,
				Confidence: models.ConfidenceUnresolved,
			},
		},
		CategoryCounts: map[models.Category]int{
			models.CategoryIssue: 1,
			models.CategoryNit:   1,
		},
		ActionItems:         []string{"Issue: Fix this issue (foo.py:3)"},
		Summary:             "Review feedback for D42: 2 comments",
		TotalComments:       2,
		CommentsWithContext: 1,
	}
}

func TestReviewFeedback(t *testing.T) {
	out := ReviewFeedback(feedbackReportFixture())

	assert.Contains(t, out, "Review Feedback Analysis for D42")
	assert.Contains(t, out, "ISSUES TO FIX (1 items)")
	assert.Contains(t, out, "NITS & STYLE (1 items)")
	assert.NotContains(t, out, "SUGGESTIONS")
	assert.Contains(t, out, "Location: foo.py:3")
	assert.Contains(t, out, "@@ -1,3 +1,4 @@")
	assert.Contains(t, out, ">>>    3 |     return broken_code  <- COMMENTED LINE")
	assert.Contains(t, out, "- Issue: Fix this issue (foo.py:3)")

	// Target marker only on the commented line.
	require.Equal(t, 1, strings.Count(out, "<- COMMENTED LINE"))
}

func TestReviewFeedbackNoComments(t *testing.T) {
	report := models.FeedbackReport{
		Revision: &models.Revision{ID: 7},
		Summary:  "Review feedback for D7: 0 comments",
	}
	out := ReviewFeedback(report)
	assert.Contains(t, out, "No actionable review feedback found.")
}

func TestReviewFeedbackNoActionItems(t *testing.T) {
	report := feedbackReportFixture()
	report.ActionItems = nil
	out := ReviewFeedback(report)
	assert.Contains(t, out, "no specific action items identified")
}

func TestFeedbackByFile(t *testing.T) {
	groups := map[string][]models.ClassifiedComment{
		models.UnattributedBucket: {{
			LocatedComment: models.LocatedComment{
				RawComment: models.RawComment{Text: "thanks!"},
				Confidence: models.ConfidenceUnresolved,
			},
			Category: models.CategoryOther,
		}},
		"foo.py": {{
			LocatedComment: models.LocatedComment{
				RawComment: models.RawComment{Text: "Fix this issue"},
				File:       "foo.py",
				TargetLine: 3,
				Confidence: models.ConfidenceExplicit,
			},
			Category: models.CategoryIssue,
		}},
	}

	out := FeedbackByFile(groups)
	assert.Contains(t, out, "foo.py (1 comments)")
	assert.Contains(t, out, "[Issue] Fix this issue")
	assert.Contains(t, out, "unattributed (1 comments)")

	// The unattributed bucket renders after every real file.
	assert.Less(t, strings.Index(out, "foo.py"), strings.Index(out, "unattributed"))
}

func TestFeedbackByFileEmpty(t *testing.T) {
	assert.Equal(t, "No feedback by file", FeedbackByFile(nil))
}

func TestRevisionWithCode(t *testing.T) {
	revision := &models.Revision{ID: 42, Title: "Add widget flushing", Status: "needs-review"}
	files := []models.DiffFile{{Path: "foo.py", Hunks: []models.Hunk{{
		Header: "@@ -1,1 +1,2 @@",
		Lines:  []models.DiffLine{{Kind: models.LineAdded, Content: "new"}},
	}}}}

	out := RevisionWithCode(revision, nil, files)
	assert.Contains(t, out, "Revision D42: Add widget flushing")
	assert.Contains(t, out, "CODE CHANGES:")
	assert.Contains(t, out, "MODIFIED: foo.py")
}
