package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/qiniu/phabmcp/pkg/models"
	"github.com/qiniu/x/xlog"
)

// Manager implements MCPManager.
type Manager struct {
	servers   map[string]MCPServer
	metrics   map[string]*models.ExecutionMetrics
	validator ToolValidator
	mutex     sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		servers:   make(map[string]MCPServer),
		metrics:   make(map[string]*models.ExecutionMetrics),
		validator: NewToolValidator(),
	}
}

// RegisterServer initializes and registers a server under the given name.
func (m *Manager) RegisterServer(name string, server MCPServer) error {
	xl := xlog.New("")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.servers[name]; exists {
		return fmt.Errorf("server %s already registered", name)
	}

	if err := server.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize server %s: %w", name, err)
	}

	m.servers[name] = server
	m.metrics[name] = &models.ExecutionMetrics{}

	info := server.GetInfo()
	xl.Debugf("Registered MCP server: %s v%s (%d tools)",
		info.Name, info.Version, len(info.Capabilities.Tools))

	return nil
}

// UnregisterServer shuts down and removes a server.
func (m *Manager) UnregisterServer(name string) error {
	xl := xlog.New("")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	server, exists := m.servers[name]
	if !exists {
		return fmt.Errorf("server %s not found", name)
	}

	if err := server.Shutdown(context.Background()); err != nil {
		xl.Warnf("Failed to shutdown server %s: %v", name, err)
	}

	delete(m.servers, name)
	delete(m.metrics, name)

	xl.Infof("Unregistered MCP server: %s", name)
	return nil
}

// GetAvailableTools lists the tools of all available servers. Tool names
// are prefixed with the server name to keep them unique across servers.
func (m *Manager) GetAvailableTools(ctx context.Context, mcpCtx *models.MCPContext) ([]models.Tool, error) {
	xl := xlog.NewWith(ctx)

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var tools []models.Tool

	for serverName, server := range m.servers {
		if !server.IsAvailable(ctx, mcpCtx) {
			xl.Debugf("Server %s not available for current context", serverName)
			continue
		}

		serverTools := server.GetTools()
		for _, tool := range serverTools {
			tool.Name = fmt.Sprintf("%s_%s", serverName, tool.Name)
			tools = append(tools, tool)
		}

		xl.Debugf("Added %d tools from server %s", len(serverTools), serverName)
	}

	xl.Infof("Total available tools: %d", len(tools))
	return tools, nil
}

// HandleToolCall resolves the target server from the prefixed tool name,
// validates the call, and dispatches it. Tool failures come back as error
// results, not Go errors.
func (m *Manager) HandleToolCall(ctx context.Context, call *models.ToolCall, mcpCtx *models.MCPContext) (*models.ToolResult, error) {
	xl := xlog.NewWith(ctx)
	startTime := time.Now()

	serverName, toolName, err := m.parseToolName(call.Function.Name)
	if err != nil {
		return m.errorResult(call.ID, err), nil
	}

	m.mutex.RLock()
	server, exists := m.servers[serverName]
	metrics := m.metrics[serverName]
	m.mutex.RUnlock()

	if !exists {
		err := fmt.Errorf("unknown MCP server: %s", serverName)
		return m.errorResult(call.ID, err), nil
	}

	var targetTool *models.Tool
	for _, tool := range server.GetTools() {
		if tool.Name == toolName {
			targetTool = &tool
			break
		}
	}

	if targetTool == nil {
		err := fmt.Errorf("tool %s not found in server %s", toolName, serverName)
		return m.errorResult(call.ID, err), nil
	}

	if err := m.validator.ValidateCall(call, targetTool); err != nil {
		return m.errorResult(call.ID, err), nil
	}

	if err := m.validator.ValidatePermissions(call, mcpCtx); err != nil {
		return m.errorResult(call.ID, err), nil
	}

	xl.Infof("Executing tool call: %s.%s", serverName, toolName)

	result, err := server.HandleToolCall(ctx, call, mcpCtx)
	if err != nil {
		xl.Errorf("Tool call failed: %v", err)
		m.updateMetrics(metrics, startTime, false)
		return m.errorResult(call.ID, err), nil
	}

	m.updateMetrics(metrics, startTime, true)

	xl.Infof("Tool call completed successfully in %v", time.Since(startTime))
	return result, nil
}

// GetServers returns a copy of the registered server map.
func (m *Manager) GetServers() map[string]MCPServer {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	servers := make(map[string]MCPServer)
	for name, server := range m.servers {
		servers[name] = server
	}
	return servers
}

// GetMetrics returns a snapshot of per-server execution metrics.
func (m *Manager) GetMetrics() map[string]*models.ExecutionMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metrics := make(map[string]*models.ExecutionMetrics)
	for name, metric := range m.metrics {
		copied := *metric
		metrics[name] = &copied
	}
	return metrics
}

// parseToolName splits a prefixed tool name into server and tool parts.
func (m *Manager) parseToolName(fullName string) (serverName, toolName string, err error) {
	parts := strings.SplitN(fullName, "_", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid tool name format: %s (expected: server_tool)", fullName)
	}
	return parts[0], parts[1], nil
}

func (m *Manager) errorResult(id string, err error) *models.ToolResult {
	return &models.ToolResult{
		ID:      id,
		Success: false,
		Error:   err.Error(),
		Type:    "error",
	}
}

func (m *Manager) updateMetrics(metrics *models.ExecutionMetrics, startTime time.Time, success bool) {
	metrics.ToolCalls++
	metrics.Duration += time.Since(startTime)
	metrics.LastExecution = time.Now()

	if success {
		metrics.Success++
	} else {
		metrics.Errors++
	}
}

// Shutdown stops every registered server and clears the registry.
func (m *Manager) Shutdown(ctx context.Context) error {
	xl := xlog.NewWith(ctx)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var errors []string

	for name, server := range m.servers {
		if err := server.Shutdown(ctx); err != nil {
			errors = append(errors, fmt.Sprintf("server %s: %v", name, err))
		}
	}

	m.servers = make(map[string]MCPServer)
	m.metrics = make(map[string]*models.ExecutionMetrics)

	if len(errors) > 0 {
		xl.Warnf("Some servers failed to shutdown: %s", strings.Join(errors, "; "))
		return fmt.Errorf("shutdown errors: %s", strings.Join(errors, "; "))
	}

	xl.Debugf("All MCP servers shutdown successfully")
	return nil
}
