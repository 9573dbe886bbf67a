package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
	"github.com/joonhok/newsagent/internal/ingest"
	"github.com/joonhok/newsagent/internal/scrape"
	"github.com/joonhok/newsagent/internal/store"
)

// ArticleStore is the slice of the store the HTTP handlers need.
type ArticleStore interface {
	Ping(ctx context.Context) error
	GetArticle(ctx context.Context, id string) (core.Article, error)
	ListArticles(ctx context.Context, f store.ListFilter) ([]core.Article, error)
	UpdateArticleAnalysis(ctx context.Context, id string, analysis core.Analysis) error
	ListScrapeRuns(ctx context.Context, limit int) ([]ingest.ScrapeRun, error)
}

// Ingestor runs one scrape-and-persist pass.
type Ingestor interface {
	Run(ctx context.Context, opts scrape.Options) (ingest.Result, error)
}

// BatchRunner analyzes pending articles in batches.
type BatchRunner interface {
	Run(ctx context.Context, source string, limit int, force bool) (core.BatchSummary, error)
}

// Server wires the HTTP API over the ingestion and analysis services.
type Server struct {
	cfg       *config.Config
	store     ArticleStore
	ingestor  Ingestor
	batch     BatchRunner
	analyzer  core.Agent
	marketing core.Agent
	reporter  core.Agent
	logger    *log.Logger
}

// Run builds every dependency from config and serves the API until the
// process is stopped. Migrations are applied on startup.
func Run(cfg *config.Config) error {
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := store.Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	defer tele.Shutdown()

	provider, err := core.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		return err
	}
	analyzer := core.NewAnalyzerAgent(cfg, provider, tele)
	batch := core.NewBatchAnalyzer(st, analyzer, cfg.Scrape.DetailBatchSize, cfg.Scrape.DetailBatchDelay)

	seen := ingest.NewSeenCache(cfg.Storage.Redis)
	defer seen.Close()
	scraper := scrape.NewScraper(cfg.Scrape, tele)
	svc := ingest.NewService(cfg.Scrape, st, scraper, seen, tele)

	s := &Server{
		cfg:       cfg,
		store:     st,
		ingestor:  svc,
		batch:     batch,
		analyzer:  analyzer,
		marketing: core.NewMarketingAgent(cfg, provider, tele),
		reporter:  core.NewReporterAgent(cfg, provider, tele),
		logger:    log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
	}

	if cfg.Server.ScheduleCron != "" {
		sched := NewScheduler(cfg, svc, batch)
		sched.Start()
		defer sched.Close()
	}

	e := s.buildEcho()
	s.logger.Printf("listening on %s", cfg.Server.Addr)
	return e.Start(cfg.Server.Addr)
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/scrape", s.handleScrape)
	api.GET("/articles", s.handleListArticles)
	api.GET("/articles/:id", s.handleGetArticle)
	api.POST("/articles/:id/analyze", s.handleAnalyzeArticle)
	api.POST("/articles/:id/marketing", s.handleMarketing)
	api.POST("/analyze", s.handleBatchAnalyze)
	api.POST("/reports", s.handleReport)
	api.GET("/runs", s.handleListRuns)
	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
	}
	return c.String(http.StatusOK, "ok")
}
