package mcp

import (
	"context"

	"github.com/qiniu/phabmcp/pkg/models"
)

// MCPServer is a named group of tools exposed over the MCP protocol.
type MCPServer interface {
	// GetInfo returns server metadata.
	GetInfo() *models.MCPServerInfo

	// GetTools returns the tools this server provides.
	GetTools() []models.Tool

	// IsAvailable reports whether the server can serve the given context.
	IsAvailable(ctx context.Context, mcpCtx *models.MCPContext) bool

	// HandleToolCall executes a tool call.
	HandleToolCall(ctx context.Context, call *models.ToolCall, mcpCtx *models.MCPContext) (*models.ToolResult, error)

	// Initialize prepares the server for use.
	Initialize(ctx context.Context) error

	// Shutdown releases server resources.
	Shutdown(ctx context.Context) error
}

// MCPManager routes tool calls to registered servers.
type MCPManager interface {
	// RegisterServer registers a server under a name.
	RegisterServer(name string, server MCPServer) error

	// UnregisterServer removes a registered server.
	UnregisterServer(name string) error

	// GetAvailableTools lists tools from all available servers, with
	// server-prefixed names.
	GetAvailableTools(ctx context.Context, mcpCtx *models.MCPContext) ([]models.Tool, error)

	// HandleToolCall validates and dispatches a tool call.
	HandleToolCall(ctx context.Context, call *models.ToolCall, mcpCtx *models.MCPContext) (*models.ToolResult, error)

	// GetServers returns the registered servers.
	GetServers() map[string]MCPServer

	// GetMetrics returns per-server execution metrics.
	GetMetrics() map[string]*models.ExecutionMetrics

	// Shutdown stops the manager and all servers.
	Shutdown(ctx context.Context) error
}

// ToolValidator checks tool calls before dispatch.
type ToolValidator interface {
	// ValidateCall validates a call against the tool definition.
	ValidateCall(call *models.ToolCall, tool *models.Tool) error

	// ValidatePermissions validates a call against context constraints.
	ValidatePermissions(call *models.ToolCall, mcpCtx *models.MCPContext) error

	// ValidateArguments validates arguments against an input schema.
	ValidateArguments(args map[string]interface{}, schema *models.JSONSchema) error
}
