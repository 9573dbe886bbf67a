package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/ingest"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the Postgres-backed persistence layer. It implements the
// article contracts consumed by ingestion and batch analysis.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens a Postgres connection pool and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertArticle persists an article unless its content hash is already
// present. It reports whether a row was actually inserted.
func (s *Store) InsertArticle(ctx context.Context, art core.Article) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, content_hash, title, url, body, author, source, kind, category, published_at, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (content_hash) DO NOTHING`,
		art.ID, art.ContentHash, art.Title, art.URL, art.Body, art.Author,
		art.Source, art.Kind, art.Category, art.PublishedAt, art.ScrapedAt)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	return n > 0, nil
}

const articleColumns = `id, content_hash, title, url, body, author, source, kind, category, published_at, scraped_at, analysis`

// GetArticle loads one article by ID.
func (s *Store) GetArticle(ctx context.Context, id string) (core.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	art, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Article{}, ErrNotFound
	}
	return art, err
}

// ListFilter narrows article listings.
type ListFilter struct {
	Source   string
	Category string
	Keyword  string // matched against title and body
	Analyzed *bool
	Since    time.Time
	Until    time.Time
	Oldest   bool // sort oldest first instead of newest
	Limit    int
	Offset   int
}

// ListArticles returns articles matching the filter, newest first by
// default.
func (s *Store) ListArticles(ctx context.Context, f ListFilter) ([]core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Source != "" {
		query += ` AND source = ` + arg(f.Source)
	}
	if f.Category != "" {
		query += ` AND category = ` + arg(f.Category)
	}
	if f.Keyword != "" {
		p := arg("%" + f.Keyword + "%")
		query += ` AND (title ILIKE ` + p + ` OR body ILIKE ` + p + `)`
	}
	if f.Analyzed != nil {
		if *f.Analyzed {
			query += ` AND analysis IS NOT NULL`
		} else {
			query += ` AND analysis IS NULL`
		}
	}
	if !f.Since.IsZero() {
		query += ` AND published_at >= ` + arg(f.Since)
	}
	if !f.Until.IsZero() {
		query += ` AND published_at < ` + arg(f.Until)
	}
	if f.Oldest {
		query += ` ORDER BY published_at ASC`
	} else {
		query += ` ORDER BY published_at DESC`
	}
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListAnalysisCandidates returns articles pending analysis, oldest
// first so backlog drains in publication order. With force set,
// already-analyzed articles are included for re-analysis.
func (s *Store) ListAnalysisCandidates(ctx context.Context, source string, limit int, force bool) ([]core.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE 1=1`
	var args []interface{}
	if !force {
		query += ` AND analysis IS NULL`
	}
	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	query += ` ORDER BY published_at ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis candidates: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleAnalysis attaches a complete analysis to an article. The
// whole record is written in one statement, so a reader never observes a
// partially analyzed article.
func (s *Store) UpdateArticleAnalysis(ctx context.Context, id string, analysis core.Analysis) error {
	blob, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET analysis = $1, analyzed_at = $2 WHERE id = $3`,
		blob, analysis.AnalyzedAt, id)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateScrapeRun records the start of an ingestion pass.
func (s *Store) CreateScrapeRun(ctx context.Context, run ingest.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, keywords, sources, categories, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, pq.Array(run.Keywords), pq.Array(run.Sources), pq.Array(run.Categories), run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create scrape run: %w", err)
	}
	return nil
}

// FinalizeScrapeRun records the outcome of an ingestion pass.
func (s *Store) FinalizeScrapeRun(ctx context.Context, run ingest.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs SET status = $1, found = $2, saved = $3, error = $4, finished_at = $5
		WHERE id = $6`,
		run.Status, run.Found, run.Saved, run.Error, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("finalize scrape run: %w", err)
	}
	return nil
}

// ListScrapeRuns returns recent runs, newest first.
func (s *Store) ListScrapeRuns(ctx context.Context, limit int) ([]ingest.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keywords, sources, categories, status, found, saved, error, started_at, finished_at
		FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []ingest.ScrapeRun
	for rows.Next() {
		var run ingest.ScrapeRun
		var runErr sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, pq.Array(&run.Keywords), pq.Array(&run.Sources), pq.Array(&run.Categories),
			&run.Status, &run.Found, &run.Saved, &runErr, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan scrape run: %w", err)
		}
		run.Error = runErr.String
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (core.Article, error) {
	var art core.Article
	var author, category sql.NullString
	var analysis []byte
	err := row.Scan(&art.ID, &art.ContentHash, &art.Title, &art.URL, &art.Body,
		&author, &art.Source, &art.Kind, &category, &art.PublishedAt, &art.ScrapedAt, &analysis)
	if err != nil {
		return core.Article{}, err
	}
	art.Author = author.String
	art.Category = category.String
	if len(analysis) > 0 {
		var a core.Analysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return core.Article{}, fmt.Errorf("unmarshal analysis for %s: %w", art.ID, err)
		}
		art.Analysis = &a
	}
	return art, nil
}

func scanArticles(rows *sql.Rows) ([]core.Article, error) {
	var articles []core.Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, art)
	}
	return articles, rows.Err()
}
