package servers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qiniu/phabmcp/internal/config"
	"github.com/qiniu/phabmcp/internal/diff"
	"github.com/qiniu/phabmcp/internal/format"
	"github.com/qiniu/phabmcp/internal/phab"
	"github.com/qiniu/phabmcp/internal/review"
	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/qiniu/x/xlog"
	"golang.org/x/sync/errgroup"
)

// DifferentialServer exposes Differential revision tools, including the
// review feedback analysis pipeline.
type DifferentialServer struct {
	clients    ClientSource
	classifier *review.Classifier
	reviewCfg  config.ReviewConfig
}

// NewDifferentialServer creates a Differential tool server.
func NewDifferentialServer(clients ClientSource, reviewCfg config.ReviewConfig) *DifferentialServer {
	return &DifferentialServer{
		clients: clients,
		classifier: review.NewClassifier(
			reviewCfg.IssueKeywords,
			reviewCfg.SuggestionKeywords,
			reviewCfg.NitKeywords,
		),
		reviewCfg: reviewCfg,
	}
}

// GetInfo returns server metadata.
func (s *DifferentialServer) GetInfo() *models.MCPServerInfo {
	return &models.MCPServerInfo{
		Name:        "differential",
		Version:     "1.0.0",
		Description: "Phabricator Differential revision operations and review feedback analysis",
		Capabilities: models.MCPServerCapabilities{
			Tools: s.GetTools(),
		},
	}
}

// GetTools returns the tool definitions.
func (s *DifferentialServer) GetTools() []models.Tool {
	apiToken := &models.JSONSchema{
		Type:        "string",
		Description: "Optional Phabricator API token overriding the configured credentials",
	}
	revisionID := &models.JSONSchema{
		Type:        "integer",
		Description: "Revision ID without the 'D' prefix",
	}

	return []models.Tool{
		{
			Name:        "get_revision",
			Description: "Get details and discussion of a Differential revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"api_token":   apiToken,
				},
				Required: []string{"revision_id"},
			},
		},
		{
			Name:        "get_revision_detailed",
			Description: "Get a Differential revision with its discussion and code changes",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"api_token":   apiToken,
				},
				Required: []string{"revision_id"},
			},
		},
		{
			Name:        "get_review_feedback",
			Description: "Analyze review comments of a revision, correlating each comment with the code it refers to",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"context_lines": {
						Type:        "integer",
						Description: "Lines of code context around each commented line",
					},
					"as_text": {
						Type:        "boolean",
						Description: "Render the report as text instead of JSON",
					},
					"api_token": apiToken,
				},
				Required: []string{"revision_id"},
			},
		},
		{
			Name:        "add_comment",
			Description: "Add a general comment to a Differential revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"comment": {
						Type:        "string",
						Description: "Comment text (Remarkup supported)",
					},
					"api_token": apiToken,
				},
				Required: []string{"revision_id", "comment"},
			},
		},
		{
			Name:        "add_inline_comment",
			Description: "Add an inline comment to a specific line of a file in a revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"file_path": {
						Type:        "string",
						Description: "Path of the file in the diff",
					},
					"line_number": {
						Type:        "integer",
						Description: "Line number in the post-change file",
					},
					"content": {
						Type:        "string",
						Description: "Comment text",
					},
					"is_new_file": {
						Type:        "boolean",
						Description: "Anchor on the post-change side (default true)",
					},
					"api_token": apiToken,
				},
				Required: []string{"revision_id", "file_path", "line_number", "content"},
			},
		},
		{
			Name:        "accept_revision",
			Description: "Accept a Differential revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"api_token":   apiToken,
				},
				Required: []string{"revision_id"},
			},
		},
		{
			Name:        "request_changes",
			Description: "Request changes on a Differential revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"comment": {
						Type:        "string",
						Description: "Optional explanation",
					},
					"api_token": apiToken,
				},
				Required: []string{"revision_id"},
			},
		},
		{
			Name:        "subscribe",
			Description: "Add subscribers to a Differential revision",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"revision_id": revisionID,
					"user_phids": {
						Type:        "array",
						Description: "User PHIDs to subscribe",
						Items:       &models.JSONSchema{Type: "string"},
					},
					"api_token": apiToken,
				},
				Required: []string{"revision_id", "user_phids"},
			},
		},
	}
}

// IsAvailable reports whether this server can serve the context.
func (s *DifferentialServer) IsAvailable(ctx context.Context, mcpCtx *models.MCPContext) bool {
	return true
}

// Initialize prepares the server.
func (s *DifferentialServer) Initialize(ctx context.Context) error {
	return nil
}

// Shutdown releases resources.
func (s *DifferentialServer) Shutdown(ctx context.Context) error {
	return nil
}

// HandleToolCall dispatches a tool call.
func (s *DifferentialServer) HandleToolCall(ctx context.Context, call *models.ToolCall, mcpCtx *models.MCPContext) (*models.ToolResult, error) {
	xl := xlog.NewWith(ctx)
	args := call.Function.Arguments

	client, err := s.clients.Client(stringArg(args, "api_token"))
	if err != nil {
		return nil, err
	}

	xl.Infof("Differential tool call: %s", call.Function.Name)

	switch call.Function.Name {
	case "get_revision":
		return s.handleGetRevision(ctx, client, call)
	case "get_revision_detailed":
		return s.handleGetRevisionDetailed(ctx, client, call)
	case "get_review_feedback":
		return s.handleGetReviewFeedback(ctx, client, call)
	case "add_comment":
		return s.handleAddComment(ctx, client, call)
	case "add_inline_comment":
		return s.handleAddInlineComment(ctx, client, call)
	case "accept_revision":
		return s.handleAcceptRevision(ctx, client, call)
	case "request_changes":
		return s.handleRequestChanges(ctx, client, call)
	case "subscribe":
		return s.handleSubscribe(ctx, client, call)
	default:
		return nil, fmt.Errorf("unknown tool: %s", call.Function.Name)
	}
}

func (s *DifferentialServer) handleGetRevision(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	revisionID, err := objectIDArg(call.Function.Arguments, "revision_id")
	if err != nil {
		return nil, err
	}

	revision, comments, err := fetchRevisionWithComments(ctx, client, revisionID)
	if err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: format.RevisionDetails(revision, comments),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleGetRevisionDetailed(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	xl := xlog.NewWith(ctx)

	revisionID, err := objectIDArg(call.Function.Arguments, "revision_id")
	if err != nil {
		return nil, err
	}

	revision, comments, rawDiff, err := fetchRevisionData(ctx, client, revisionID)
	if err != nil {
		return nil, err
	}

	files, err := diff.Parse(rawDiff)
	if err != nil {
		xl.Errorf("Could not parse diff for revision D%s: %v", revisionID, err)
		return nil, fmt.Errorf("revision D%s: %w", revisionID, err)
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: format.RevisionWithCode(revision, comments, files),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleGetReviewFeedback(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	revisionID, err := objectIDArg(args, "revision_id")
	if err != nil {
		return nil, err
	}
	contextLines := intArg(args, "context_lines", s.reviewCfg.ContextLines)
	if contextLines <= 0 {
		contextLines = config.DefaultContextLines
	}

	revision, comments, rawDiff, err := fetchRevisionData(ctx, client, revisionID)
	if err != nil {
		return nil, err
	}

	files, err := diff.Parse(rawDiff)
	if err != nil {
		// No partial report from an unparsable diff.
		xlog.NewWith(ctx).Errorf("Could not parse diff for revision D%s: %v", revisionID, err)
		return nil, fmt.Errorf("revision D%s: %w", revisionID, err)
	}

	correlator := review.NewCorrelator(contextLines)
	located := correlator.Correlate(comments, files)
	classified := s.classifier.ClassifyAll(located)
	report := review.Aggregate(revision, classified)

	if boolArg(args, "as_text", false) {
		content := format.ReviewFeedback(report) + "\n\n" +
			format.FeedbackByFile(review.GroupByFile(classified))
		return &models.ToolResult{
			ID:      call.ID,
			Success: true,
			Content: content,
			Type:    "text",
		}, nil
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feedback report: %w", err)
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: string(payload),
		Type:    "json",
	}, nil
}

func (s *DifferentialServer) handleAddComment(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	revisionID, err := objectIDArg(args, "revision_id")
	if err != nil {
		return nil, err
	}
	comment, err := requiredString(args, "comment")
	if err != nil {
		return nil, err
	}

	if err := client.AddRevisionComment(ctx, revisionID, comment); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Comment added to revision D%s", revisionID),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleAddInlineComment(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	revisionID, err := objectIDArg(args, "revision_id")
	if err != nil {
		return nil, err
	}
	filePath, err := requiredString(args, "file_path")
	if err != nil {
		return nil, err
	}
	lineNumber := intArg(args, "line_number", 0)
	if lineNumber <= 0 {
		return nil, fmt.Errorf("missing or invalid line_number")
	}
	content, err := requiredString(args, "content")
	if err != nil {
		return nil, err
	}
	isNewFile := boolArg(args, "is_new_file", true)

	if err := client.AddInlineComment(ctx, revisionID, filePath, lineNumber, content, isNewFile); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Inline comment added to %s:%d in revision D%s", filePath, lineNumber, revisionID),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleAcceptRevision(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	revisionID, err := objectIDArg(call.Function.Arguments, "revision_id")
	if err != nil {
		return nil, err
	}

	if err := client.AcceptRevision(ctx, revisionID); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Revision D%s accepted", revisionID),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleRequestChanges(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	revisionID, err := objectIDArg(args, "revision_id")
	if err != nil {
		return nil, err
	}
	comment := stringArg(args, "comment")

	if err := client.RequestChanges(ctx, revisionID, comment); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Changes requested on revision D%s", revisionID),
		Type:    "text",
	}, nil
}

func (s *DifferentialServer) handleSubscribe(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	revisionID, err := objectIDArg(args, "revision_id")
	if err != nil {
		return nil, err
	}
	userPHIDs := stringSliceArg(args, "user_phids")
	if len(userPHIDs) == 0 {
		return nil, fmt.Errorf("missing or invalid user_phids")
	}

	if err := client.SubscribeToRevision(ctx, revisionID, userPHIDs); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Subscribed %d user(s) to revision D%s", len(userPHIDs), revisionID),
		Type:    "text",
	}, nil
}

// fetchRevisionWithComments fetches a revision and its discussion in
// parallel.
func fetchRevisionWithComments(ctx context.Context, client phab.API, revisionID string) (*models.Revision, []models.RawComment, error) {
	var (
		revision *models.Revision
		comments []models.RawComment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revision, err = client.GetRevision(gctx, revisionID)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = client.GetRevisionComments(gctx, revisionID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return revision, comments, nil
}

// fetchRevisionData fetches a revision, its discussion, and its raw diff in
// parallel.
func fetchRevisionData(ctx context.Context, client phab.API, revisionID string) (*models.Revision, []models.RawComment, string, error) {
	var (
		revision *models.Revision
		comments []models.RawComment
		rawDiff  string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revision, err = client.GetRevision(gctx, revisionID)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = client.GetRevisionComments(gctx, revisionID)
		return err
	})
	g.Go(func() error {
		var err error
		rawDiff, err = client.GetRawDiff(gctx, revisionID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, "", err
	}
	return revision, comments, rawDiff, nil
}
