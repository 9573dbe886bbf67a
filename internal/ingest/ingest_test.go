package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/scrape"
)

type memStore struct {
	articles  map[string]core.Article // keyed by content hash
	insertErr map[string]error        // keyed by content hash
	runs      map[string]ScrapeRun
	finalized map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		articles:  map[string]core.Article{},
		insertErr: map[string]error{},
		runs:      map[string]ScrapeRun{},
		finalized: map[string]int{},
	}
}

func (m *memStore) InsertArticle(ctx context.Context, art core.Article) (bool, error) {
	if err := m.insertErr[art.ContentHash]; err != nil {
		return false, err
	}
	if _, dup := m.articles[art.ContentHash]; dup {
		return false, nil
	}
	m.articles[art.ContentHash] = art
	return true, nil
}

func (m *memStore) CreateScrapeRun(ctx context.Context, run ScrapeRun) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) FinalizeScrapeRun(ctx context.Context, run ScrapeRun) error {
	m.runs[run.ID] = run
	m.finalized[run.ID]++
	return nil
}

type fakeScraper struct {
	articles []scrape.RawArticle
	err      error
	block    chan struct{} // when set, Run waits until closed
}

func (f *fakeScraper) Run(ctx context.Context, opts scrape.Options) ([]scrape.RawArticle, error) {
	if f.block != nil {
		<-f.block
	}
	return f.articles, f.err
}

func rawArticle(title, hash string) scrape.RawArticle {
	return scrape.RawArticle{
		Title:       title,
		URL:         "https://news.example.com/" + hash,
		Body:        title + " 본문",
		SourceID:    "hankyung",
		SourceKind:  scrape.KindFeed,
		Category:    "economy",
		ContentHash: hash,
	}
}

func testService(store Store, scraper Scraper) *Service {
	return NewService(config.ScrapeConfig{MaxConcurrentRuns: 2}, store, scraper, nil, nil)
}

func TestRunSavesAndFinalizes(t *testing.T) {
	store := newMemStore()
	scraper := &fakeScraper{articles: []scrape.RawArticle{
		rawArticle("기사 1", strings.Repeat("a", 64)),
		rawArticle("기사 2", strings.Repeat("b", 64)),
	}}

	result, err := testService(store, scraper).Run(context.Background(), scrape.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Found != 2 || result.Saved != 2 || result.Duplicates != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.articles) != 2 {
		t.Fatalf("stored %d articles", len(store.articles))
	}

	run := store.runs[result.RunID]
	if run.Status != RunStatusSuccess || run.Found != 2 || run.Saved != 2 {
		t.Errorf("run record = %+v", run)
	}
	if store.finalized[result.RunID] != 1 {
		t.Errorf("run finalized %d times", store.finalized[result.RunID])
	}
	if run.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestRunCountsStoreDuplicates(t *testing.T) {
	store := newMemStore()
	hash := strings.Repeat("c", 64)
	store.articles[hash] = core.Article{ContentHash: hash}

	scraper := &fakeScraper{articles: []scrape.RawArticle{rawArticle("이미 있는 기사", hash)}}
	result, err := testService(store, scraper).Run(context.Background(), scrape.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Found != 1 || result.Saved != 0 || result.Duplicates != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunInsertFailureIsWarning(t *testing.T) {
	store := newMemStore()
	bad := strings.Repeat("d", 64)
	store.insertErr[bad] = fmt.Errorf("column too long")

	scraper := &fakeScraper{articles: []scrape.RawArticle{
		rawArticle("좋은 기사", strings.Repeat("e", 64)),
		rawArticle("나쁜 기사", bad),
	}}
	result, err := testService(store, scraper).Run(context.Background(), scrape.Options{})
	if err != nil {
		t.Fatalf("one bad article must not fail the run: %v", err)
	}
	if result.Saved != 1 || len(result.Warnings) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunScrapeFailureMarksRunFailed(t *testing.T) {
	store := newMemStore()
	scraper := &fakeScraper{err: fmt.Errorf("no enabled sources match")}

	result, err := testService(store, scraper).Run(context.Background(), scrape.Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	run := store.runs[result.RunID]
	if run.Status != RunStatusFailed || run.Error == "" {
		t.Errorf("run record = %+v", run)
	}
	if store.finalized[result.RunID] != 1 {
		t.Errorf("failed run finalized %d times", store.finalized[result.RunID])
	}
}

func TestRunConcurrencyLimit(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	scraper := &fakeScraper{block: block}
	svc := NewService(config.ScrapeConfig{MaxConcurrentRuns: 1}, store, scraper, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Run(context.Background(), scrape.Options{})
	}()

	// Wait for the first run to occupy the slot.
	for i := 0; len(svc.slots) == 0; i++ {
		if i > 1000 {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Run(context.Background(), scrape.Options{}); err == nil {
		t.Fatal("expected rejection while another run holds the slot")
	}
	close(block)
	<-done
}
