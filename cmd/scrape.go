package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/joonhok/newsagent/internal/ingest"
	"github.com/joonhok/newsagent/internal/scrape"
)

func scrapeCMD() *cobra.Command {
	var cfgPath string
	var keywords, sources, categories []string
	var cmd = &cobra.Command{
		Use:   "scrape",
		Short: "Run one ingestion pass and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, cleanup, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			seen := ingest.NewSeenCache(application.cfg.Storage.Redis)
			defer seen.Close()
			scraper := scrape.NewScraper(application.cfg.Scrape, application.tele)
			svc := ingest.NewService(application.cfg.Scrape, application.store, scraper, seen, application.tele)

			result, err := svc.Run(ctx, scrape.Options{
				Sources:    sources,
				Categories: categories,
				Keywords:   keywords,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringSliceVarP(&keywords, "keywords", "k", nil, "search keywords (ignores categories)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "source IDs to scrape (default all)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "categories to scrape (default all)")
	return cmd
}
