package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/dispatch"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/mangle"
	"surfacemap-mcp-server/internal/mcp"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/oracle"
)

var (
	serveSSEPort int
	serveTools   string
	serveCorpus  string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve declared tools over MCP, replaying operations from the corpus",
		Long: `serve loads the operation corpus written by discover and the tool declarations
at mcp.tools_path, registers one MCP tool per declaration and replays the best
matching operation on a fresh browser session for every call. It speaks stdio
unless an SSE port is configured.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&serveSSEPort, "sse-port", 0, "Serve over SSE on this port instead of stdio")
	serveCmd.Flags().StringVar(&serveTools, "tools", "", "Override mcp.tools_path")
	serveCmd.Flags().StringVar(&serveCorpus, "corpus", "", "Override discovery.corpus_path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveSSEPort != 0 {
		cfg.MCP.SSEPort = serveSSEPort
	}
	if serveTools != "" {
		cfg.MCP.ToolsPath = serveTools
	}
	if serveCorpus != "" {
		cfg.Discovery.CorpusPath = serveCorpus
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer := newLogger(cfg, cfg.MCP.SSEPort == 0)
	defer closer.Close()

	completer := newCompleter(ctx, cfg, log)
	sessions := newLiveSessions(cfg, completer, log)
	defer sessions.Close(context.Background())

	server, err := buildServer(ctx, cfg, sessions.factory, newChooser(completer, log), log)
	if err != nil {
		return err
	}

	if cfg.MCP.SSEPort > 0 {
		err = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Info(ctx, "starting MCP stdio server", nil)
		err = server.Start(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

// buildServer loads the corpus and the tool declarations and wires them into
// an MCP server. Both artifacts are required.
func buildServer(ctx context.Context, cfg config.Config, factory oracle.SessionFactory, chooser oracle.Chooser, log logger.Logger) (*mcp.Server, error) {
	doc, err := operation.LoadFile(cfg.Discovery.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	registry := dispatch.NewRegistry(log)
	n, err := registry.LoadFile(cfg.MCP.ToolsPath)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no tools declared in %s", cfg.MCP.ToolsPath)
	}

	graph, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, fmt.Errorf("initialize fact store: %w", err)
	}
	if graph.Enabled() {
		if err := graph.AddFacts(ctx, mangle.CorpusFacts(doc.Records, doc.GeneratedAt)); err != nil {
			log.Warn(ctx, "failed to seed state graph from corpus", map[string]interface{}{"error": err.Error()})
		}
	}

	dispatcher := dispatch.NewDispatcher(
		registry,
		doc.Corpus(),
		factory,
		chooser,
		discovery.NewNavigator(cfg.Discovery.StepSettleDuration(), cfg.Discovery.StateSettleDuration()),
		log,
	)

	log.Info(ctx, "corpus loaded", map[string]interface{}{
		"run_id":  doc.RunID,
		"records": len(doc.Records),
		"tools":   n,
	})
	return mcp.NewServer(cfg, dispatcher, doc, graph, log)
}
