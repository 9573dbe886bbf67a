package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
	"github.com/joonhok/newsagent/internal/store"
)

func main() {
	var root = &cobra.Command{
		Use:   "newsagent",
		Short: "News ingestion and LLM analysis service",
	}

	root.AddCommand(serveCMD(), scrapeCMD(), analyzeCMD(), reportCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the dependencies the one-shot CLI commands share.
type app struct {
	cfg   *config.Config
	store *store.Store
	tele  *telemetry.Telemetry
}

func buildApp(ctx context.Context, cfgPath string) (*app, func(), error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	cleanup := func() {
		tele.Shutdown()
		_ = st.Close()
	}
	return &app{cfg: cfg, store: st, tele: tele}, cleanup, nil
}
