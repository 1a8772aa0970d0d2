package models

import (
	"encoding/json"
	"time"
)

// MCP protocol data model. Requests and responses travel as line-delimited
// JSON-RPC 2.0 over stdio, or as a single POST body over HTTP.

// MCPID is a JSON-RPC request ID, which clients may send as a string or a
// number.
type MCPID struct {
	Value interface{}
}

func (id MCPID) MarshalJSON() ([]byte, error) {
	if id.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.Value)
}

func (id *MCPID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.Value)
}

// MCPRequest MCP protocol request.
type MCPRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      MCPID                  `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

// MCPResponse MCP protocol response.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      MCPID       `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError JSON-RPC error object.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Tool MCP tool definition.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema *JSONSchema `json:"inputSchema"`
}

// JSONSchema definition for tool arguments.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Enum                 []interface{}          `json:"enum,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties,omitempty"`
}

// ToolCall is a single tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the tool and carries its arguments.
type ToolFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Content interface{} `json:"content,omitempty"`
	Error   string      `json:"error,omitempty"`
	Type    string      `json:"type,omitempty"` // text, json
}

// MCPServerCapabilities declares what a tool server offers.
type MCPServerCapabilities struct {
	Tools     []Tool `json:"tools"`
	Resources []any  `json:"resources,omitempty"`
	Prompts   []any  `json:"prompts,omitempty"`
}

// MCPServerInfo describes a registered tool server.
type MCPServerInfo struct {
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Description  string                `json:"description"`
	Capabilities MCPServerCapabilities `json:"capabilities"`
	CreatedAt    time.Time             `json:"created_at"`
}

// MCPContext is the execution context shared by all tool calls of one
// server process.
type MCPContext struct {
	// Phabricator instance the tools talk to.
	Host string `json:"host,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// Permission control.
	Permissions []string `json:"permissions,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// ExecutionMetrics per-server tool call counters.
type ExecutionMetrics struct {
	ToolCalls     int           `json:"tool_calls"`
	Duration      time.Duration `json:"duration"`
	Success       int           `json:"success"`
	Errors        int           `json:"errors"`
	LastExecution time.Time     `json:"last_execution"`
}
