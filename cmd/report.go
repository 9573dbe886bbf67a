package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/store"
)

func reportCMD() *cobra.Command {
	var cfgPath, source, from, to string
	var cmd = &cobra.Command{
		Use:   "report",
		Short: "Generate a digest of analyzed articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			until := time.Now().UTC()
			if to != "" {
				if until, err = time.Parse("2006-01-02", to); err != nil {
					return fmt.Errorf("invalid --to date: %w", err)
				}
			}
			since := until.AddDate(0, 0, -7)
			if from != "" {
				if since, err = time.Parse("2006-01-02", from); err != nil {
					return fmt.Errorf("invalid --from date: %w", err)
				}
			}

			analyzed := true
			articles, err := application.store.ListArticles(ctx, store.ListFilter{
				Source:   source,
				Analyzed: &analyzed,
				Since:    since,
				Until:    until,
				Limit:    500,
			})
			if err != nil {
				return err
			}

			provider, err := core.NewOpenAIProvider(application.cfg.LLM)
			if err != nil {
				return err
			}
			reporter := core.NewReporterAgent(application.cfg, provider, application.tele)
			result, err := reporter.Execute(ctx, core.AgentTask{
				ID:   uuid.New().String(),
				Type: core.TaskTypeReport,
				Payload: core.ReportInput{
					Articles: articles,
					Period:   since.Format("2006-01-02") + " ~ " + until.Format("2006-01-02"),
				},
			})
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("report generation failed: %s", result.Error)
			}

			fmt.Println(result.Output["report"])
			fmt.Printf("\n(cost: $%.4f over %d tokens)\n", result.Cost.Price, result.Cost.Tokens)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&source, "source", "", "restrict to one source ID")
	cmd.Flags().StringVar(&from, "from", "", "period start, YYYY-MM-DD (default 7 days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "period end, YYYY-MM-DD (default today)")
	return cmd
}
