package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qiniu/phabmcp/internal/config"
	"github.com/qiniu/phabmcp/internal/mcp"
	"github.com/qiniu/phabmcp/internal/mcp/servers"
	"github.com/qiniu/phabmcp/internal/phab"
	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/qiniu/x/log"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	clientManager := phab.NewManager(cfg)

	manager := mcp.NewManager()
	if err := manager.RegisterServer("maniphest", servers.NewManiphestServer(clientManager)); err != nil {
		log.Fatalf("Failed to register maniphest server: %v", err)
	}
	if err := manager.RegisterServer("differential", servers.NewDifferentialServer(clientManager, cfg.Review)); err != nil {
		log.Fatalf("Failed to register differential server: %v", err)
	}

	mcpContext := &models.MCPContext{
		Host:     cfg.Phabricator.URL,
		Metadata: make(map[string]string),
		Permissions: []string{
			"phabricator:read",
			"phabricator:write",
		},
	}
	protocol := mcp.NewProtocol(manager, mcpContext, "phabmcp-server", "1.0.0")

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", handleMCP(protocol))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Infof("Phabricator MCP server listening on %s (instance: %s)", addr, cfg.Phabricator.URL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
	if err := manager.Shutdown(ctx); err != nil {
		log.Errorf("Manager shutdown failed: %v", err)
	}

	log.Info("Server stopped")
}

// handleMCP serves one JSON-RPC request per POST body.
func handleMCP(protocol *mcp.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request models.MCPRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeResponse(w, mcp.ErrorResponse(models.MCPID{}, -32700, "Parse error", err.Error()))
			return
		}

		response := protocol.HandleRequest(r.Context(), &request)
		if response == nil {
			// Notification: acknowledge with no body.
			w.WriteHeader(http.StatusAccepted)
			return
		}

		writeResponse(w, response)
	}
}

func writeResponse(w http.ResponseWriter, response *models.MCPResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}
