package servers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/qiniu/phabmcp/internal/config"
	"github.com/qiniu/phabmcp/internal/diff"
	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const revisionDiff = `diff --git a/foo.py b/foo.py
--- a/foo.py
+++ b/foo.py
@@ -1,3 +1,4 @@
 def main():
     x = compute()
+    return broken_code
     return x
`

func differentialFixture() (*DifferentialServer, *fakeAPI, *fakeSource) {
	api := &fakeAPI{
		revision: &models.Revision{
			ID:         42,
			Title:      "Add widget flushing",
			Status:     "needs-review",
			AuthorPHID: "PHID-USER-author",
			Summary:    "Flush caches on save.",
		},
		revisionComments: []models.RawComment{
			{
				Author: "PHID-USER-rev",
				Text:   "Fix this issue",
				Type:   models.CommentTypeInline,
				Path:   "foo.py",
				Line:   3,
			},
			{
				Author: "PHID-USER-rev",
				Text:   "nit: rename variable",
				Type:   models.CommentTypeGeneral,
			},
		},
		rawDiff: revisionDiff,
	}
	source := &fakeSource{api: api}
	server := NewDifferentialServer(source, config.ReviewConfig{ContextLines: 2})
	return server, api, source
}

func TestDifferentialGetInfo(t *testing.T) {
	server, _, _ := differentialFixture()

	info := server.GetInfo()
	assert.Equal(t, "differential", info.Name)
	assert.Len(t, info.Capabilities.Tools, 8)
}

func TestDifferentialGetRevision(t *testing.T) {
	server, _, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("get_revision", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "text", result.Type)
	assert.Contains(t, result.Content, "Revision D42: Add widget flushing")
	assert.Contains(t, result.Content, "Fix this issue")
}

func TestDifferentialGetRevisionDetailed(t *testing.T) {
	server, _, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("get_revision_detailed", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.NoError(t, err)

	assert.Contains(t, result.Content, "CODE CHANGES:")
	assert.Contains(t, result.Content, "MODIFIED: foo.py")
	assert.Contains(t, result.Content, "+    return broken_code")
}

func TestDifferentialGetRevisionDetailedBadDiff(t *testing.T) {
	server, api, _ := differentialFixture()
	api.rawDiff = "this is not a diff"

	_, err := server.HandleToolCall(context.Background(),
		toolCall("get_revision_detailed", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "malformed diff")
}

func TestDifferentialGetReviewFeedback(t *testing.T) {
	server, _, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("get_review_feedback", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "json", result.Type)

	payload, ok := result.Content.(string)
	require.True(t, ok)

	var report models.FeedbackReport
	require.NoError(t, json.Unmarshal([]byte(payload), &report))

	assert.Equal(t, 2, report.TotalComments)
	assert.Equal(t, 1, report.CommentsWithContext)
	require.Len(t, report.ReviewFeedback, 2)

	// The inline comment resolves to foo.py:3 and classifies as an issue.
	issue := report.ReviewFeedback[0]
	assert.Equal(t, models.ConfidenceExplicit, issue.Confidence)
	assert.Equal(t, models.CategoryIssue, issue.Category)
	require.NotNil(t, issue.PrimaryFile)
	require.NotNil(t, issue.PrimaryLine)
	assert.Equal(t, "foo.py", *issue.PrimaryFile)
	assert.Equal(t, 3, *issue.PrimaryLine)
	require.NotNil(t, issue.CodeContext)

	var target *models.ContextLine
	for i := range issue.CodeContext.Lines {
		if issue.CodeContext.Lines[i].IsTarget {
			target = &issue.CodeContext.Lines[i]
		}
	}
	require.NotNil(t, target)
	assert.Equal(t, 3, target.LineNumber)
	assert.Equal(t, "    return broken_code", target.Content)

	// The general nit has no code anchor.
	nit := report.ReviewFeedback[1]
	assert.Equal(t, models.ConfidenceUnresolved, nit.Confidence)
	assert.Equal(t, models.CategoryNit, nit.Category)
	assert.Nil(t, nit.CodeContext)

	require.Len(t, report.ActionItems, 1)
	assert.Equal(t, "Issue: Fix this issue (foo.py:3)", report.ActionItems[0])
}

func TestDifferentialGetReviewFeedbackAsText(t *testing.T) {
	server, _, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("get_review_feedback", map[string]interface{}{
			"revision_id": float64(42),
			"as_text":     true,
		}), nil)
	require.NoError(t, err)

	assert.Equal(t, "text", result.Type)
	assert.Contains(t, result.Content, "Review Feedback Analysis for D42")
	assert.Contains(t, result.Content, "ISSUES TO FIX")
	assert.Contains(t, result.Content, "<- COMMENTED LINE")
	assert.Contains(t, result.Content, "FEEDBACK BY FILE:")
	assert.Contains(t, result.Content, "foo.py (1 comments)")
}

func TestDifferentialGetReviewFeedbackBadDiff(t *testing.T) {
	server, api, _ := differentialFixture()
	api.rawDiff = "garbage"

	// No partial report from an unparsable diff.
	_, err := server.HandleToolCall(context.Background(),
		toolCall("get_review_feedback", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "malformed diff")

	var malformed *diff.MalformedDiffError
	assert.ErrorAs(t, err, &malformed)
}

func TestDifferentialAddComment(t *testing.T) {
	server, api, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("add_comment", map[string]interface{}{
			"revision_id": float64(42),
			"comment":     "LGTM overall",
		}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "LGTM overall", api.revisionComment)
}

func TestDifferentialAddInlineComment(t *testing.T) {
	server, api, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("add_inline_comment", map[string]interface{}{
			"revision_id": float64(42),
			"file_path":   "foo.py",
			"line_number": float64(3),
			"content":     "guard this",
		}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "foo.py", api.inlinePath)
	assert.Equal(t, 3, api.inlineLine)
	assert.Equal(t, "guard this", api.inlineContent)
	assert.True(t, api.inlineIsNewFile)
}

func TestDifferentialAddInlineCommentOldSide(t *testing.T) {
	server, api, _ := differentialFixture()

	_, err := server.HandleToolCall(context.Background(),
		toolCall("add_inline_comment", map[string]interface{}{
			"revision_id": float64(42),
			"file_path":   "foo.py",
			"line_number": float64(2),
			"content":     "old side",
			"is_new_file": false,
		}), nil)
	require.NoError(t, err)
	assert.False(t, api.inlineIsNewFile)
}

func TestDifferentialAcceptRevision(t *testing.T) {
	server, api, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("accept_revision", map[string]interface{}{"revision_id": float64(42)}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, api.accepted)
}

func TestDifferentialRequestChanges(t *testing.T) {
	server, api, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("request_changes", map[string]interface{}{
			"revision_id": float64(42),
			"comment":     "needs tests",
		}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, api.changesRequested)
	assert.Equal(t, "needs tests", api.requestComment)
}

func TestDifferentialSubscribe(t *testing.T) {
	server, api, _ := differentialFixture()

	result, err := server.HandleToolCall(context.Background(),
		toolCall("subscribe", map[string]interface{}{
			"revision_id": float64(42),
			"user_phids":  []interface{}{"PHID-USER-a"},
		}), nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"D42"}, api.subscribedObjects)
}

func TestDifferentialAPITokenForwarded(t *testing.T) {
	server, _, source := differentialFixture()

	_, err := server.HandleToolCall(context.Background(),
		toolCall("get_revision", map[string]interface{}{
			"revision_id": float64(42),
			"api_token":   "api-override",
		}), nil)
	require.NoError(t, err)
	assert.Equal(t, "api-override", source.lastToken)
}

func TestDifferentialUnknownTool(t *testing.T) {
	server, _, _ := differentialFixture()

	_, err := server.HandleToolCall(context.Background(),
		toolCall("merge_revision", map[string]interface{}{}), nil)
	assert.ErrorContains(t, err, "unknown tool")
}
