package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
	"github.com/joonhok/newsagent/internal/scrape"
)

// Scrape run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ScrapeRun is the audit record for one ingestion pass.
type ScrapeRun struct {
	ID         string    `json:"id"`
	Keywords   []string  `json:"keywords,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Status     string    `json:"status"`
	Found      int       `json:"found"`
	Saved      int       `json:"saved"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Result summarizes one ingestion pass for the caller.
type Result struct {
	RunID      string   `json:"run_id"`
	Found      int      `json:"found"`
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Store is the persistence contract ingestion needs. The Postgres store
// implements it. InsertArticle reports false for duplicates so the run
// accounting can separate new articles from re-discoveries.
type Store interface {
	InsertArticle(ctx context.Context, art core.Article) (bool, error)
	CreateScrapeRun(ctx context.Context, run ScrapeRun) error
	FinalizeScrapeRun(ctx context.Context, run ScrapeRun) error
}

// Scraper is the fetching contract, implemented by scrape.Scraper.
type Scraper interface {
	Run(ctx context.Context, opts scrape.Options) ([]scrape.RawArticle, error)
}

// Service runs the scrape-filter-persist pipeline and keeps the audit
// trail. Concurrent runs are capped so an aggressive scheduler cannot
// pile scrapes on top of each other.
type Service struct {
	store     Store
	scraper   Scraper
	seen      *SeenCache
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	slots     chan struct{}
}

// NewService creates the ingestion service.
func NewService(cfg config.ScrapeConfig, store Store, scraper Scraper, seen *SeenCache, tele *telemetry.Telemetry) *Service {
	maxRuns := cfg.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 5
	}
	return &Service{
		store:     store,
		scraper:   scraper,
		seen:      seen,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
		slots:     make(chan struct{}, maxRuns),
	}
}

// Run executes one ingestion pass. The run record is created up front
// and finalized exactly once, whether the pass completes or fails.
func (s *Service) Run(ctx context.Context, opts scrape.Options) (Result, error) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		return Result{}, fmt.Errorf("too many concurrent scrape runs")
	}

	run := ScrapeRun{
		ID:         uuid.New().String(),
		Keywords:   opts.Keywords,
		Sources:    opts.Sources,
		Categories: opts.Categories,
		Status:     RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateScrapeRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("create scrape run: %w", err)
	}

	result, err := s.ingest(ctx, opts, &run)

	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = RunStatusSuccess
	}
	if ferr := s.store.FinalizeScrapeRun(context.WithoutCancel(ctx), run); ferr != nil {
		s.logger.Printf("run %s: finalize failed: %v", run.ID, ferr)
	}

	result.RunID = run.ID
	return result, err
}

func (s *Service) ingest(ctx context.Context, opts scrape.Options, run *ScrapeRun) (Result, error) {
	raw, err := s.scraper.Run(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	run.Found = len(raw)

	hashes := make([]string, len(raw))
	for i, art := range raw {
		hashes[i] = art.ContentHash
	}
	cached := s.seen.Seen(ctx, hashes)

	result := Result{Found: len(raw)}
	var newHashes []string
	for _, art := range raw {
		if cached[art.ContentHash] {
			result.Duplicates++
			continue
		}
		inserted, err := s.store.InsertArticle(ctx, core.Article{
			ID:          uuid.New().String(),
			ContentHash: art.ContentHash,
			Title:       art.Title,
			URL:         art.URL,
			Body:        art.Body,
			Author:      art.Author,
			Source:      art.SourceID,
			Kind:        art.SourceKind,
			Category:    art.Category,
			PublishedAt: art.PublishedAt,
			ScrapedAt:   time.Now().UTC(),
		})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("save %s: %v", art.URL, err))
			continue
		}
		newHashes = append(newHashes, art.ContentHash)
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Saved++
		s.telemetry.RecordSaved(art.SourceID, 1)
	}
	s.seen.Mark(ctx, newHashes)

	run.Saved = result.Saved
	s.logger.Printf("run %s: found=%d saved=%d duplicates=%d warnings=%d",
		run.ID, result.Found, result.Saved, result.Duplicates, len(result.Warnings))
	return result, nil
}
