package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/extract"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/mangle"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/recorder"
)

var (
	discoverRootURL  string
	discoverMaxDepth int
	discoverOut      string
	discoverProvider string

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Explore the target application and write the operation corpus",
		Long: `discover walks the target application breadth-first from target.root_url up to
target.max_depth navigation steps and writes every operation it finds to
discovery.corpus_path. A run that stops early still writes what it captured and
exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runDiscover,
	}
)

func init() {
	discoverCmd.Flags().StringVar(&discoverRootURL, "root-url", "", "Override target.root_url")
	discoverCmd.Flags().IntVar(&discoverMaxDepth, "max-depth", 0, "Override target.max_depth")
	discoverCmd.Flags().StringVar(&discoverOut, "out", "", "Override discovery.corpus_path")
	discoverCmd.Flags().StringVar(&discoverProvider, "oracle", "", "Override oracle.provider (claude, openai, none)")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if discoverRootURL != "" {
		cfg.Target.RootURL = discoverRootURL
	}
	if cmd.Flags().Changed("max-depth") {
		cfg.Target.MaxDepth = discoverMaxDepth
	}
	if discoverOut != "" {
		cfg.Discovery.CorpusPath = discoverOut
	}
	if discoverProvider != "" {
		cfg.Oracle.Provider = discoverProvider
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer := newLogger(cfg, false)
	defer closer.Close()

	sessions := newLiveSessions(cfg, newCompleter(ctx, cfg, log), log)
	defer sessions.Close(context.Background())

	_, err = discover(ctx, cfg, sessions.factory, log, cmd.OutOrStdout())
	return err
}

// discover runs one traversal, persists the corpus even when the run stops
// early, and reports a summary on out.
func discover(ctx context.Context, cfg config.Config, factory oracle.SessionFactory, log logger.Logger, out io.Writer) (operation.Document, error) {
	runID := uuid.NewString()
	log = log.WithField("run_id", runID)

	var listeners []discovery.Listener

	graph, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return operation.Document{}, fmt.Errorf("initialize fact store: %w", err)
	}
	if graph.Enabled() {
		listeners = append(listeners, mangle.NewGraphListener(graph, log))
	}

	trace, err := recorder.NewRecorder(cfg.Discovery.TraceDir)
	if err == nil {
		err = trace.Start(runID)
	}
	if err != nil {
		log.Warn(ctx, "trace recorder unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		defer trace.Close()
		listeners = append(listeners, trace)
	}

	engine := discovery.NewEngine(
		factory,
		extract.NewPipeline(extract.DefaultClassifiers(), log),
		discovery.Options{
			MaxDepth:     cfg.Target.MaxDepth,
			Navigator:    discovery.NewNavigator(cfg.Discovery.StepSettleDuration(), cfg.Discovery.StateSettleDuration()),
			SummaryLimit: cfg.Discovery.GetSummaryLimit(),
		},
		log,
		listeners...,
	)

	log.Info(ctx, "discovery started", map[string]interface{}{
		"root_url":  cfg.Target.RootURL,
		"max_depth": cfg.Target.MaxDepth,
	})
	corpus, runErr := engine.Explore(ctx)

	doc := operation.NewDocument(runID, cfg.Target.RootURL, corpus)
	if err := operation.WriteFile(cfg.Discovery.CorpusPath, doc); err != nil {
		if runErr != nil {
			return doc, fmt.Errorf("%v; also failed to write corpus: %w", runErr, err)
		}
		return doc, err
	}

	stats := engine.Stats()
	fields := map[string]interface{}{
		"states":         stats.StatesVisited,
		"edges":          stats.Edges,
		"modals":         stats.Modals,
		"records":        stats.Records,
		"failed_entity":  stats.FailedEntity,
		"corpus_path":    cfg.Discovery.CorpusPath,
		"crud_breakdown": corpus.Counts(),
	}
	if graph.Enabled() {
		if summary, err := graph.Summary(ctx); err == nil {
			fields["graph"] = summary
		} else {
			log.Warn(ctx, "state graph summary failed", map[string]interface{}{"error": err.Error()})
		}
	}
	log.Info(ctx, "discovery finished", fields)

	fmt.Fprintf(out, "run %s: %d operations from %d states written to %s\n",
		runID, len(doc.Records), stats.StatesVisited, cfg.Discovery.CorpusPath)
	for _, kind := range []operation.CrudKind{operation.Create, operation.Read, operation.Update, operation.Delete, operation.Unspecified} {
		if n := corpus.Counts()[kind]; n > 0 {
			fmt.Fprintf(out, "  %-11s %d\n", kind, n)
		}
	}

	if runErr != nil {
		return doc, fmt.Errorf("discovery stopped early: %w", runErr)
	}
	return doc, nil
}
