package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/strata/internal/query"
)

var (
	flagMaxTokens int
	flagStrategy  string
	flagShowPlan  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve a token-bounded context for a question without calling the model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, _, err := a.engine()
		if err != nil {
			return err
		}

		maxTokens := flagMaxTokens
		if maxTokens == 0 {
			maxTokens = a.cfg.Retrieval.MaxTokens
		}
		strategy := flagStrategy
		if strategy == "" {
			strategy = a.cfg.Retrieval.Strategy
		}

		res := engine.Retrieve(strings.Join(args, " "), maxTokens, strategy, query.DefaultFormatting)
		if flagShowPlan {
			fmt.Printf("intent: %s (confidence %.2f)\n", res.Intent.Kind, res.Intent.Confidence)
			fmt.Printf("strategy: %s (estimated cost %.1f)\n", res.Plan.Strategy, res.Plan.EstimatedCost)
			for _, s := range res.Plan.Steps {
				fmt.Printf("  %s %s %v (~%.1f chunks)\n", s.Op, s.Index, s.Keys, s.EstimatedResults)
			}
			fmt.Println()
		}
		fmt.Println(res.Context.Text())
		fmt.Printf("\n%d chunks, %d tokens, %.1f%% coverage, %s\n",
			res.Context.ChunkCount, res.Context.TokenCount, res.Context.Coverage*100, res.Elapsed)
		return nil
	},
}

func init() {
	queryCmd.Flags().IntVar(&flagMaxTokens, "max-tokens", 0, "Token ceiling for the context (default from config)")
	queryCmd.Flags().StringVar(&flagStrategy, "strategy", "", "Selection strategy: greedy, balanced, diverse")
	queryCmd.Flags().BoolVar(&flagShowPlan, "plan", false, "Print the query plan")
	rootCmd.AddCommand(queryCmd)
}
