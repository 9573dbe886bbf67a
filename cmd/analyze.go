package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/joonhok/newsagent/internal/agent/core"
)

func analyzeCMD() *cobra.Command {
	var cfgPath, source string
	var limit int
	var force bool
	var cmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze pending articles in batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			provider, err := core.NewOpenAIProvider(application.cfg.LLM)
			if err != nil {
				return err
			}
			analyzer := core.NewAnalyzerAgent(application.cfg, provider, application.tele)
			batch := core.NewBatchAnalyzer(application.store, analyzer,
				application.cfg.Scrape.DetailBatchSize, application.cfg.Scrape.DetailBatchDelay)

			summary, err := batch.Run(ctx, source, limit, force)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&source, "source", "", "restrict to one source ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "max articles to analyze")
	cmd.Flags().BoolVar(&force, "force", false, "re-analyze already analyzed articles")
	return cmd
}
