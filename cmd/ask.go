package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/strata/internal/chain"
	"github.com/agentic-research/strata/internal/model"
	"github.com/agentic-research/strata/internal/query"
)

const systemPrompt = `You are an assistant answering questions about a loaded building
model. Use the available tools to inspect entities, spatial relations,
and retrieved context. Respond with structured JSON decisions.`

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about the model through the decision endpoint",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		question := strings.Join(args, " ")

		// Seed the first round with retrieved context so the model can
		// often answer without any tool calls.
		engine, _, err := a.engine()
		if err != nil {
			return err
		}
		seeded := engine.Retrieve(question, a.cfg.Retrieval.MaxTokens, a.cfg.Retrieval.Strategy, query.DefaultFormatting)

		client, err := model.NewClient(model.Config{
			BaseURL:           a.cfg.Model.Endpoint,
			APIKey:            a.cfg.Model.APIKey(),
			Timeout:           a.cfg.Model.Timeout(),
			RequestsPerSecond: a.cfg.Model.RequestsPerSecond,
		})
		if err != nil {
			return err
		}
		source := model.DecisionSource(client)
		if a.cfg.Model.MaxRetries > 0 {
			policy := model.DefaultRetryPolicy()
			policy.MaxAttempts = a.cfg.Model.MaxRetries
			source = policy.Wrap(client)
		}

		executor := chain.NewExecutor(source, a.registry, chain.Config{
			System:        systemPrompt,
			MaxIterations: a.cfg.Chain.MaxIterations,
			HistoryChars:  a.cfg.Chain.HistoryChars,
		}, slog.Default())

		res := executor.Run(cmd.Context(), question, seeded.Context.Text())
		switch res.Status {
		case chain.StatusDone:
			fmt.Println(res.FinalAnswer)
		case chain.StatusExhausted:
			fmt.Printf("gave up after %d rounds (%d tool calls)\n", res.Iterations, len(res.ToolCalls))
			if res.FinalAnswer != "" {
				fmt.Println("partial answer:", res.FinalAnswer)
			}
		case chain.StatusFailed:
			return fmt.Errorf("%s: %s", res.Err.Code, res.Err.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
