package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/qiniu/phabmcp/pkg/models"
	"github.com/qiniu/x/xlog"
)

// ProtocolVersion is the MCP protocol version this server speaks.
const ProtocolVersion = "2024-11-05"

// Protocol implements the transport-independent half of the MCP protocol:
// initialize, tools/list, and tools/call. Transports (stdio, HTTP) decode
// requests, call HandleRequest, and encode the response.
type Protocol struct {
	manager    MCPManager
	mcpCtx     *models.MCPContext
	serverName string
	version    string
}

// NewProtocol creates a protocol handler on top of a manager.
func NewProtocol(manager MCPManager, mcpCtx *models.MCPContext, serverName, version string) *Protocol {
	return &Protocol{
		manager:    manager,
		mcpCtx:     mcpCtx,
		serverName: serverName,
		version:    version,
	}
}

// HandleRequest processes one JSON-RPC request. A nil response means the
// request was a notification and needs no reply.
func (p *Protocol) HandleRequest(ctx context.Context, request *models.MCPRequest) *models.MCPResponse {
	xl := xlog.NewWith(ctx)

	switch request.Method {
	case "initialize":
		return p.handleInitialize(ctx, request)

	case "tools/list":
		return p.handleToolsList(ctx, request)

	case "tools/call":
		return p.handleToolCall(ctx, request)

	case "notifications/initialized":
		xl.Debugf("Client sent initialized notification")
		return nil

	default:
		return ErrorResponse(request.ID, -32601, "Method not found",
			fmt.Sprintf("Unknown method: %s", request.Method))
	}
}

func (p *Protocol) handleInitialize(ctx context.Context, request *models.MCPRequest) *models.MCPResponse {
	xl := xlog.NewWith(ctx)

	// The protocol version is fixed; the client's requested version is
	// only logged.
	if requested, ok := request.Params["protocolVersion"].(string); ok {
		xl.Debugf("Client requested protocol version: %s", requested)
	}

	return &models.MCPResponse{
		ID:      request.ID,
		JSONRPC: "2.0",
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    p.serverName,
				"version": p.version,
			},
		},
	}
}

func (p *Protocol) handleToolsList(ctx context.Context, request *models.MCPRequest) *models.MCPResponse {
	tools, err := p.manager.GetAvailableTools(ctx, p.mcpCtx)
	if err != nil {
		return ErrorResponse(request.ID, -32603, "Failed to get tools", err.Error())
	}

	mcpTools := make([]interface{}, len(tools))
	for i, tool := range tools {
		mcpTools[i] = map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		}
	}

	return &models.MCPResponse{
		ID:      request.ID,
		JSONRPC: "2.0",
		Result: map[string]interface{}{
			"tools": mcpTools,
		},
	}
}

func (p *Protocol) handleToolCall(ctx context.Context, request *models.MCPRequest) *models.MCPResponse {
	xl := xlog.NewWith(ctx)

	arguments, ok := request.Params["arguments"].(map[string]interface{})
	if !ok {
		return ErrorResponse(request.ID, -32602, "Invalid params", "Missing or invalid arguments")
	}

	toolName, ok := request.Params["name"].(string)
	if !ok {
		return ErrorResponse(request.ID, -32602, "Invalid params", "Missing or invalid tool name")
	}

	call := &models.ToolCall{
		ID: fmt.Sprintf("%v", request.ID.Value),
		Function: models.ToolFunction{
			Name:      toolName,
			Arguments: arguments,
		},
	}

	xl.Infof("Executing tool call: %s", toolName)

	result, err := p.manager.HandleToolCall(ctx, call, p.mcpCtx)
	if err != nil {
		return ErrorResponse(request.ID, -32603, "Tool execution failed", err.Error())
	}

	if !result.Success {
		return ErrorResponse(request.ID, -32603, "Tool execution failed", result.Error)
	}

	return &models.MCPResponse{
		ID:      request.ID,
		JSONRPC: "2.0",
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": FormatToolResult(result),
				},
			},
		},
	}
}

// FormatToolResult renders a tool result as text. JSON payloads are
// re-indented for readability.
func FormatToolResult(result *models.ToolResult) string {
	if result.Type == "json" {
		if s, ok := result.Content.(string); ok {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(s), "", "  "); err == nil {
				return buf.String()
			}
			return s
		}
		if data, err := json.MarshalIndent(result.Content, "", "  "); err == nil {
			return string(data)
		}
	}

	return fmt.Sprintf("%v", result.Content)
}

// ErrorResponse builds a JSON-RPC error response.
func ErrorResponse(id models.MCPID, code int, message, data string) *models.MCPResponse {
	return &models.MCPResponse{
		ID:      id,
		JSONRPC: "2.0",
		Error: &models.MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
