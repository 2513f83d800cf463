package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"surfacemap-mcp-server/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a .surfacemap/ workspace with config and tool templates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return err
		}
		if err := config.InitWorkspace(abs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized workspace in %s\n", filepath.Join(abs, config.WorkspaceDirName))
		return nil
	},
}
