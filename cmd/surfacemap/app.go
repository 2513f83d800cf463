package main

import (
	"context"
	"io"
	"os"

	"surfacemap-mcp-server/internal/browser"
	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/llm"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/session"
)

// loadConfig merges defaults, workspace, explicit config and environment, then
// applies the global flags.
func loadConfig() (config.Config, error) {
	cfg, _, err := config.LoadWithWorkspace(configPath, config.WorkspaceOptions{
		Disable:     noWorkspace,
		ExplicitDir: workspaceDir,
	})
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger writes to stderr, or to server.log_file when stdout carries the MCP
// stdio protocol. The returned closer is never nil.
func newLogger(cfg config.Config, stdio bool) (logger.Logger, io.Closer) {
	if stdio && cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return logger.NewLogrusLoggerTo(cfg.Server.LogLevel, f), f
		}
		// stderr may interfere with some MCP clients; stay silent instead.
		return logger.NewLogrusLoggerTo(cfg.Server.LogLevel, io.Discard), noopCloser{}
	}
	return logger.NewLogrusLogger(cfg.Server.LogLevel), noopCloser{}
}

// newCompleter returns nil when no model is configured or reachable; the
// oracles then work from page probes only.
func newCompleter(ctx context.Context, cfg config.Config, log logger.Logger) llm.Completer {
	c, err := llm.NewCompleter(cfg.Oracle, os.LookupEnv)
	if err != nil {
		log.Warn(ctx, "oracle model unavailable, continuing with page probes only", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if c == nil {
		log.Info(ctx, "oracle model disabled", nil)
	}
	return c
}

// newChooser prefers the model and falls back to keyword matching.
func newChooser(c llm.Completer, log logger.Logger) oracle.Chooser {
	if c == nil {
		return llm.KeywordChooser{}
	}
	return llm.NewChooser(c, log)
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// liveSessions owns the browser and the session factory built on it.
type liveSessions struct {
	manager *browser.Manager
	factory *session.Factory
}

func newLiveSessions(cfg config.Config, c llm.Completer, log logger.Logger) *liveSessions {
	manager := browser.NewManager(cfg.Browser, log)
	factory := session.NewFactory(session.ManagerPages{Manager: manager}, c, session.OptionsFromConfig(cfg), log)
	return &liveSessions{manager: manager, factory: factory}
}

func (l *liveSessions) Close(ctx context.Context) {
	_ = l.factory.Close()
	_ = l.manager.Shutdown(ctx)
}
