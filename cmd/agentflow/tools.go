package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentflow/pkg/tools"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tool catalogue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		descriptors := tools.NewDefaultRegistry(tools.NewToolbox(workspaceDir)).Descriptors()
		if toolsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(descriptors)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TOOL\tAPPROVAL\tDESCRIPTION")
		for _, d := range descriptors {
			approval := ""
			if d.RequiresApproval {
				approval = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, approval, d.Description)
		}
		return tw.Flush()
	},
}

func init() { //nolint:gochecknoinits // cobra command wiring
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print descriptors as JSON")
}
