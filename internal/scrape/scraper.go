package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
)

// Scraper orchestrates the three fetchers over the configured sources.
// It deduplicates by content hash within a run, so an article surfaced
// by both a feed and a listing page is emitted once.
type Scraper struct {
	cfg       config.ScrapeConfig
	feed      *FeedFetcher
	listing   *ListingFetcher
	search    *SearchFetcher
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewScraper creates a scraper over the configured sources.
func NewScraper(cfg config.ScrapeConfig, tele *telemetry.Telemetry) *Scraper {
	return &Scraper{
		cfg:       cfg,
		feed:      NewFeedFetcher(cfg),
		listing:   NewListingFetcher(cfg),
		search:    NewSearchFetcher(cfg),
		telemetry: tele,
		logger:    log.New(log.Writer(), "[SCRAPER] ", log.LstdFlags),
	}
}

// Run executes one scrape pass. With keywords set it searches source by
// source and stops at the first source that yields results; otherwise it
// sweeps feeds and listings for the requested categories.
func (s *Scraper) Run(ctx context.Context, opts Options) ([]RawArticle, error) {
	sources := s.selectSources(opts.Sources)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled sources match %v", opts.Sources)
	}

	if len(opts.Keywords) > 0 {
		return s.runKeyword(ctx, sources, opts.Keywords), nil
	}
	return s.runCategories(ctx, sources, opts.Categories), nil
}

func (s *Scraper) selectSources(ids []string) []config.SourceConfig {
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []config.SourceConfig
	for _, src := range s.cfg.Sources {
		if !src.Enabled {
			continue
		}
		if len(wanted) > 0 && !wanted[src.ID] {
			continue
		}
		out = append(out, src)
	}
	return out
}

// runCategories sweeps every feed and listing of the selected sources,
// bounded by a small worker pool. A failed fetch is recorded against the
// source and skipped; the sweep itself always completes.
func (s *Scraper) runCategories(ctx context.Context, sources []config.SourceConfig, categories []string) []RawArticle {
	col := newCollector()
	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup

	run := func(src config.SourceConfig, category, kind string, fetch func() ([]RawArticle, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			articles, err := fetch()
			s.telemetry.RecordSourceEvent(telemetry.SourceEvent{
				Source:   src.ID,
				Kind:     kind,
				Success:  err == nil,
				Results:  len(articles),
				Duration: time.Since(start),
			})
			col.add(articles)
		}()
	}

	for _, src := range sources {
		src := src
		for category, feedURL := range src.FeedURLs {
			if !categoryWanted(categories, category) {
				continue
			}
			category, feedURL := category, feedURL
			run(src, category, KindFeed, func() ([]RawArticle, error) {
				return s.feed.Fetch(ctx, src, category, feedURL)
			})
		}
		for category, listingURL := range src.ListingURLs {
			if !categoryWanted(categories, category) {
				continue
			}
			category, listingURL := category, listingURL
			run(src, category, KindHTML, func() ([]RawArticle, error) {
				return s.listing.Fetch(ctx, src, category, listingURL)
			})
		}
	}
	wg.Wait()

	s.logger.Printf("category sweep: %d unique articles from %d sources", len(col.articles), len(sources))
	return col.articles
}

// runKeyword tries sources in configured order and stops at the first
// one that yields relevant results. Sources with a search page are
// queried once per keyword; the rest are swept and filtered, and the
// union across keywords is kept.
func (s *Scraper) runKeyword(ctx context.Context, sources []config.SourceConfig, keywords []string) []RawArticle {
	col := newCollector()
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if src.SearchURL != "" {
			for _, keyword := range keywords {
				start := time.Now()
				articles, err := s.search.Fetch(ctx, src, keyword)
				articles = filterByKeyword(articles, keyword)
				s.telemetry.RecordSourceEvent(telemetry.SourceEvent{
					Source:   src.ID,
					Kind:     KindSearch,
					Success:  err == nil,
					Results:  len(articles),
					Duration: time.Since(start),
				})
				col.add(articles)
			}
		} else {
			start := time.Now()
			swept, failures := s.sweepSource(ctx, src)
			articles := filterByAnyKeyword(swept, keywords)
			s.telemetry.RecordSourceEvent(telemetry.SourceEvent{
				Source:   src.ID,
				Kind:     KindFeed,
				Success:  failures == 0,
				Results:  len(articles),
				Duration: time.Since(start),
			})
			col.add(articles)
		}
		if len(col.articles) > 0 {
			s.logger.Printf("keywords %v: %d articles from %s, stopping", keywords, len(col.articles), src.ID)
			break
		}
	}
	return col.articles
}

func (s *Scraper) sweepSource(ctx context.Context, src config.SourceConfig) ([]RawArticle, int) {
	var out []RawArticle
	var failures int
	for category, feedURL := range src.FeedURLs {
		articles, err := s.feed.Fetch(ctx, src, category, feedURL)
		if err != nil {
			failures++
		}
		out = append(out, articles...)
	}
	for category, listingURL := range src.ListingURLs {
		articles, err := s.listing.Fetch(ctx, src, category, listingURL)
		if err != nil {
			failures++
		}
		out = append(out, articles...)
	}
	return out, failures
}

// filterByKeyword keeps articles whose title or body contains the
// keyword, case-folded. It runs after body extraction so title-only
// articles are still matchable.
func filterByKeyword(articles []RawArticle, keyword string) []RawArticle {
	needle := strings.ToLower(keyword)
	var out []RawArticle
	for _, art := range articles {
		if strings.Contains(strings.ToLower(art.Title), needle) ||
			strings.Contains(strings.ToLower(art.Body), needle) {
			out = append(out, art)
		}
	}
	return out
}

// filterByAnyKeyword keeps articles matching at least one keyword.
func filterByAnyKeyword(articles []RawArticle, keywords []string) []RawArticle {
	var out []RawArticle
	for _, art := range articles {
		title := strings.ToLower(art.Title)
		body := strings.ToLower(art.Body)
		for _, keyword := range keywords {
			needle := strings.ToLower(keyword)
			if strings.Contains(title, needle) || strings.Contains(body, needle) {
				out = append(out, art)
				break
			}
		}
	}
	return out
}

func categoryWanted(categories []string, category string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}

// collector deduplicates concurrently produced articles by content hash.
type collector struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	articles []RawArticle
}

func newCollector() *collector {
	return &collector{seen: map[string]struct{}{}}
}

func (c *collector) add(articles []RawArticle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, art := range articles {
		if _, dup := c.seen[art.ContentHash]; dup {
			continue
		}
		c.seen[art.ContentHash] = struct{}{}
		c.articles = append(c.articles, art)
	}
}
