package servers

import (
	"context"
	"fmt"

	"github.com/qiniu/phabmcp/internal/format"
	"github.com/qiniu/phabmcp/internal/phab"
	"github.com/qiniu/phabmcp/pkg/models"
	"github.com/qiniu/x/xlog"
)

// ManiphestServer exposes Maniphest task tools.
type ManiphestServer struct {
	clients ClientSource
}

// NewManiphestServer creates a Maniphest tool server.
func NewManiphestServer(clients ClientSource) *ManiphestServer {
	return &ManiphestServer{clients: clients}
}

// GetInfo returns server metadata.
func (s *ManiphestServer) GetInfo() *models.MCPServerInfo {
	return &models.MCPServerInfo{
		Name:        "maniphest",
		Version:     "1.0.0",
		Description: "Phabricator Maniphest task operations",
		Capabilities: models.MCPServerCapabilities{
			Tools: s.GetTools(),
		},
	}
}

// GetTools returns the tool definitions.
func (s *ManiphestServer) GetTools() []models.Tool {
	apiToken := &models.JSONSchema{
		Type:        "string",
		Description: "Optional Phabricator API token overriding the configured credentials",
	}

	return []models.Tool{
		{
			Name:        "get_task",
			Description: "Get details and comments of a Maniphest task",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"task_id": {
						Type:        "integer",
						Description: "Task ID without the 'T' prefix",
					},
					"api_token": apiToken,
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "add_comment",
			Description: "Add a comment to a Maniphest task",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"task_id": {
						Type:        "integer",
						Description: "Task ID without the 'T' prefix",
					},
					"comment": {
						Type:        "string",
						Description: "Comment text (Remarkup supported)",
					},
					"api_token": apiToken,
				},
				Required: []string{"task_id", "comment"},
			},
		},
		{
			Name:        "subscribe",
			Description: "Add subscribers to a Maniphest task",
			InputSchema: &models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.JSONSchema{
					"task_id": {
						Type:        "integer",
						Description: "Task ID without the 'T' prefix",
					},
					"user_phids": {
						Type:        "array",
						Description: "User PHIDs to subscribe",
						Items:       &models.JSONSchema{Type: "string"},
					},
					"api_token": apiToken,
				},
				Required: []string{"task_id", "user_phids"},
			},
		},
	}
}

// IsAvailable reports whether this server can serve the context.
func (s *ManiphestServer) IsAvailable(ctx context.Context, mcpCtx *models.MCPContext) bool {
	return true
}

// Initialize prepares the server.
func (s *ManiphestServer) Initialize(ctx context.Context) error {
	return nil
}

// Shutdown releases resources.
func (s *ManiphestServer) Shutdown(ctx context.Context) error {
	return nil
}

// HandleToolCall dispatches a tool call.
func (s *ManiphestServer) HandleToolCall(ctx context.Context, call *models.ToolCall, mcpCtx *models.MCPContext) (*models.ToolResult, error) {
	xl := xlog.NewWith(ctx)
	args := call.Function.Arguments

	client, err := s.clients.Client(stringArg(args, "api_token"))
	if err != nil {
		return nil, err
	}

	xl.Infof("Maniphest tool call: %s", call.Function.Name)

	switch call.Function.Name {
	case "get_task":
		return s.handleGetTask(ctx, client, call)
	case "add_comment":
		return s.handleAddComment(ctx, client, call)
	case "subscribe":
		return s.handleSubscribe(ctx, client, call)
	default:
		return nil, fmt.Errorf("unknown tool: %s", call.Function.Name)
	}
}

func (s *ManiphestServer) handleGetTask(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	taskID, err := objectIDArg(call.Function.Arguments, "task_id")
	if err != nil {
		return nil, err
	}

	task, err := client.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	comments, err := client.GetTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: format.TaskDetails(task, comments),
		Type:    "text",
	}, nil
}

func (s *ManiphestServer) handleAddComment(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	taskID, err := objectIDArg(args, "task_id")
	if err != nil {
		return nil, err
	}
	comment, err := requiredString(args, "comment")
	if err != nil {
		return nil, err
	}

	if err := client.AddTaskComment(ctx, taskID, comment); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Comment added to task T%s", taskID),
		Type:    "text",
	}, nil
}

func (s *ManiphestServer) handleSubscribe(ctx context.Context, client phab.API, call *models.ToolCall) (*models.ToolResult, error) {
	args := call.Function.Arguments

	taskID, err := objectIDArg(args, "task_id")
	if err != nil {
		return nil, err
	}
	userPHIDs := stringSliceArg(args, "user_phids")
	if len(userPHIDs) == 0 {
		return nil, fmt.Errorf("missing or invalid user_phids")
	}

	if err := client.SubscribeToTask(ctx, taskID, userPHIDs); err != nil {
		return nil, err
	}

	return &models.ToolResult{
		ID:      call.ID,
		Success: true,
		Content: fmt.Sprintf("Subscribed %d user(s) to task T%s", len(userPHIDs), taskID),
		Type:    "text",
	}, nil
}
