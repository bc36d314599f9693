// Command agentflow runs requests against a local workspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"agentflow/pkg/config"
	"agentflow/pkg/logx"
	"agentflow/pkg/version"
)

var (
	workspaceDir string
	debugFlag    bool
	debugDomains []string
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "Plan and execute code changes against a local workspace",
	Long: `agentflow routes a natural-language request to a pipeline, plans
tasks, executes each task as a sequence of tool calls and reports a summary.

Available commands:
  run     - Run a request
  index   - Build or watch the workspace index
  tools   - List the tool catalogue
  secrets - Manage encrypted provider API keys`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if debugFlag {
			logx.SetDebug(true, debugDomains...)
		}
		abs, err := filepath.Abs(workspaceDir)
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("workspace %s: %w", abs, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workspace %s is not a directory", abs)
		}
		workspaceDir = abs
		return nil
	},
}

func init() { //nolint:gochecknoinits // cobra command wiring
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "dir", "C", ".", "workspace directory")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&debugDomains, "debug-domains", nil, "limit debug logging to these domains")
	rootCmd.Version = version.String()
	rootCmd.AddCommand(runCmd, indexCmd, toolsCmd, secretsCmd)
}

// loadConfig installs the workspace configuration and returns a copy.
func loadConfig() (config.Config, error) {
	if err := config.LoadConfig(workspaceDir); err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return config.GetConfig()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logx.CloseLogFile()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
