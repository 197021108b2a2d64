package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/strata/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the model query tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		return mcpserver.ServeStdio(a.registry, version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
