// Command surfacemap discovers the operations a web application exposes and
// serves them as MCP tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	noWorkspace  bool
	workspaceDir string
	logLevel     string

	rootCmd = &cobra.Command{
		Use:   "surfacemap",
		Short: "Map a web application's operations and replay them as MCP tools",
		Long: `surfacemap explores a web application breadth-first from its root page,
records every data operation it finds (tables, lists, forms, dialogs) together with
the click path that reaches it, and serves declared tools over MCP by replaying the
best matching operation on a fresh browser session.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to an explicit config file (overrides the workspace config)")
	rootCmd.PersistentFlags().BoolVar(&noWorkspace, "no-workspace", false, "Skip .surfacemap/ workspace discovery")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Use this directory as the workspace root")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(discoverCmd, serveCmd, initCmd)
}

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "surfacemap: %v\n", err)
		os.Exit(1)
	}
}
