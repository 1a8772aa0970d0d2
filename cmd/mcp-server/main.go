package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/qiniu/phabmcp/internal/config"
	"github.com/qiniu/phabmcp/internal/mcp"
	"github.com/qiniu/phabmcp/internal/mcp/servers"
	"github.com/qiniu/phabmcp/internal/phab"
	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration file")
	pflag.Parse()

	// stdout carries the protocol, so logs go to stderr and a debug file.
	logFile, err := os.OpenFile("/tmp/phabmcp-server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
		defer logFile.Close()
	}
	log.SetPrefix("[MCP Server] ")

	log.Println("Starting Phabricator MCP Server...")

	protocol, err := initialize(*configPath)
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}

	log.Println("MCP Server ready, listening on stdin/stdout...")

	serveStdio(protocol)
}

func initialize(configPath string) (*mcp.Protocol, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	clientManager := phab.NewManager(cfg)

	manager := mcp.NewManager()
	if err := manager.RegisterServer("maniphest", servers.NewManiphestServer(clientManager)); err != nil {
		return nil, fmt.Errorf("failed to register maniphest server: %w", err)
	}
	if err := manager.RegisterServer("differential", servers.NewDifferentialServer(clientManager, cfg.Review)); err != nil {
		return nil, fmt.Errorf("failed to register differential server: %w", err)
	}

	mcpContext := &models.MCPContext{
		Host:     cfg.Phabricator.URL,
		Metadata: make(map[string]string),
		Permissions: []string{
			"phabricator:read",
			"phabricator:write",
		},
	}

	log.Printf("Registered %d MCP servers for %s", len(manager.GetServers()), cfg.Phabricator.URL)

	fmt.Fprintln(os.Stderr, "Phabricator MCP Server running on stdio")

	return mcp.NewProtocol(manager, mcpContext, "phabmcp-server", "1.0.0"), nil
}

// serveStdio reads line-delimited JSON-RPC requests from stdin and writes
// responses to stdout.
func serveStdio(protocol *mcp.Protocol) {
	ctx := context.Background()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var request models.MCPRequest
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			log.Printf("Failed to parse request: %v", err)
			send(mcp.ErrorResponse(models.MCPID{}, -32700, "Parse error", err.Error()))
			continue
		}

		response := protocol.HandleRequest(ctx, &request)

		// Notifications produce no response.
		if response == nil {
			continue
		}
		send(response)
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Scanner error: %v", err)
	}
}

func send(response *models.MCPResponse) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		log.Printf("Failed to marshal response: %v", err)
		return
	}
	fmt.Println(string(responseJSON))
}
