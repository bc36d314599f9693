package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentflow/pkg/indexer"
	"agentflow/pkg/workspace"
)

var (
	watchIndex    bool
	watchDebounce = indexer.DefaultDebounce
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the workspace index",
	Long: `Index walks the workspace and writes .index/index.json with the file
list and the Python symbols of every module. With --watch it keeps the
index current until interrupted.`,
	RunE: runIndex,
}

func init() { //nolint:gochecknoinits // cobra command wiring
	indexCmd.Flags().BoolVarP(&watchIndex, "watch", "w", false, "rebuild the index whenever files change")
	indexCmd.Flags().DurationVar(&watchDebounce, "debounce", indexer.DefaultDebounce, "quiet period before a rebuild")
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ix := indexer.New(cfg.Index.MaxFiles)
	out := workspace.IndexPath(workspaceDir)
	if err := ix.Regenerate(cmd.Context(), workspaceDir, out); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	snapshot, err := workspace.Load(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d python modules -> %s\n",
		len(snapshot.Files), len(snapshot.PySymbols), out)
	if snapshot.Truncated {
		fmt.Fprintf(cmd.OutOrStdout(), "file list truncated at %d entries\n", cfg.Index.MaxFiles)
	}
	if !watchIndex {
		return nil
	}

	err = ix.Watch(cmd.Context(), workspaceDir, watchDebounce, func(err error) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "rebuild failed: %v\n", err)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), "index rebuilt")
	})
	if err != nil && cmd.Context().Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
