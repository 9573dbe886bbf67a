package scrape

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/helpers"
)

// SearchFetcher queries a source's keyword search page and hydrates the
// result links. Search result pages mix article links with navigation,
// so links are filtered by the source's article pattern.
type SearchFetcher struct {
	cfg     config.ScrapeConfig
	client  *http.Client
	details *detailFetcher
	logger  *log.Logger
}

// NewSearchFetcher creates a search fetcher.
func NewSearchFetcher(cfg config.ScrapeConfig) *SearchFetcher {
	timeout := cfg.FeedTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	logger := log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	return &SearchFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		details: newDetailFetcher(cfg, logger),
		logger:  logger,
	}
}

// searchHit is one article link on a results page with its anchor text.
type searchHit struct {
	URL   string
	Title string
}

// Fetch runs one keyword search against a source. A result whose detail
// page cannot be fetched degrades to a title-only article built from the
// anchor text rather than disappearing. A failed results page is an
// error.
func (s *SearchFetcher) Fetch(ctx context.Context, src config.SourceConfig, keyword string) ([]RawArticle, error) {
	if src.SearchURL == "" {
		return nil, nil
	}
	searchURL := fmt.Sprintf(src.SearchURL, url.QueryEscape(keyword))

	hits, err := s.extractHits(ctx, src, searchURL)
	if err != nil {
		s.logger.Printf("%s: search %q: %v", src.ID, keyword, err)
		return nil, err
	}
	if max := s.cfg.MaxSearchResults; max > 0 && len(hits) > max {
		hits = hits[:max]
	}

	links := make([]string, len(hits))
	for i, hit := range hits {
		links[i] = hit.URL
	}
	articles := s.details.fetchAll(ctx, src, "", KindSearch, links)

	hydrated := make(map[string]bool, len(articles))
	for _, art := range articles {
		hydrated[art.URL] = true
	}
	for _, hit := range hits {
		if hydrated[hit.URL] || hit.Title == "" {
			continue
		}
		hash, err := helpers.ContentHash(hit.URL)
		if err != nil {
			continue
		}
		articles = append(articles, RawArticle{
			Title:       hit.Title,
			URL:         hit.URL,
			Body:        hit.Title,
			SourceID:    src.ID,
			SourceKind:  KindSearch,
			ContentHash: hash,
			PublishedAt: time.Now().UTC(),
		})
	}
	return articles, nil
}

func (s *SearchFetcher) extractHits(ctx context.Context, src config.SourceConfig, searchURL string) ([]searchHit, error) {
	patternSrc := src.ArticlePattern
	if patternSrc == "" {
		patternSrc = src.LinkPattern
	}
	pattern, err := regexp.Compile(patternSrc)
	if err != nil {
		return nil, fmt.Errorf("bad article pattern %q: %w", patternSrc, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	seen := map[string]struct{}{}
	var hits []searchHit
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || !pattern.MatchString(href) {
			return
		}
		abs := href
		if !helpers.IsAbsoluteURL(href) {
			resolved, err := helpers.ResolveURL(searchURL, href)
			if err != nil {
				return
			}
			abs = resolved
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		hits = append(hits, searchHit{
			URL:   abs,
			Title: strings.Join(strings.Fields(sel.Text()), " "),
		})
	})
	return hits, nil
}
