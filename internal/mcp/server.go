// Package mcp exposes declared tools over the Model Context Protocol. Every
// call is resolved by the dispatcher against the discovered operation corpus.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/dispatch"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/mangle"
	"surfacemap-mcp-server/internal/operation"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server wires the MCP runtime, the dispatcher and the state-graph facts.
type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	engine     *mangle.Engine
	corpus     operation.Document
	log        logger.Logger
	tools      map[string]Tool
	mcpServer  *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// declaredTool forwards a declared tool to the dispatcher.
type declaredTool struct {
	decl       dispatch.Tool
	dispatcher *dispatch.Dispatcher
}

func (t declaredTool) Name() string                        { return t.decl.Name }
func (t declaredTool) Description() string                 { return t.decl.Description }
func (t declaredTool) InputSchema() map[string]interface{} { return t.decl.Schema() }

func (t declaredTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.dispatcher.Invoke(ctx, t.decl.Name, args)
}

// NewServer registers one MCP tool per declared tool. engine may be nil.
func NewServer(cfg config.Config, dispatcher *dispatch.Dispatcher, corpus operation.Document, engine *mangle.Engine, log logger.Logger) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		engine:     engine,
		corpus:     corpus,
		log:        log.WithField("component", "mcp"),
		tools:      make(map[string]Tool),
		mcpServer:  mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start serves over stdio until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info(ctx, "SSE server listening", map[string]interface{}{"port": port})
	select {
	case <-ctx.Done():
		s.log.Info(context.Background(), "SSE server shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool runs a registered tool directly.
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrToolNotFound, name)
	}
	return tool.Execute(ctx, args)
}

// ToolNames lists registered tools in declaration order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.dispatcher.Registry().Tools() {
		if _, ok := s.tools[t.Name]; ok {
			names = append(names, t.Name)
		}
	}
	return names
}

func (s *Server) registerAllTools() {
	for _, decl := range s.dispatcher.Registry().Tools() {
		s.registerTool(declaredTool{decl: decl, dispatcher: s.dispatcher})
	}
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			s.log.Warn(ctx, "tool call failed", map[string]interface{}{"tool": tool.Name(), "error": err.Error()})
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
