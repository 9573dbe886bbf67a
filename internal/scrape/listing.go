package scrape

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/helpers"
)

// ListingFetcher scrapes category listing pages: it extracts article
// links matching the source's link pattern and hydrates each one.
type ListingFetcher struct {
	cfg     config.ScrapeConfig
	client  *http.Client
	details *detailFetcher
	logger  *log.Logger
}

// NewListingFetcher creates a listing fetcher.
func NewListingFetcher(cfg config.ScrapeConfig) *ListingFetcher {
	timeout := cfg.FeedTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	logger := log.New(log.Writer(), "[LISTING] ", log.LstdFlags)
	return &ListingFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		details: newDetailFetcher(cfg, logger),
		logger:  logger,
	}
}

// Fetch scrapes one listing page. A page with no matching links is an
// empty slice; a page that fails to load or parse is an error.
func (l *ListingFetcher) Fetch(ctx context.Context, src config.SourceConfig, category, listingURL string) ([]RawArticle, error) {
	links, err := l.extractLinks(ctx, src, listingURL)
	if err != nil {
		l.logger.Printf("%s/%s: %v", src.ID, category, err)
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	if max := l.cfg.MaxLinksPerListing; max > 0 && len(links) > max {
		links = links[:max]
	}
	return l.details.fetchAll(ctx, src, category, KindHTML, links), nil
}

// extractLinks collects unique article links from a listing page in
// document order. Relative links resolve against the listing URL.
func (l *ListingFetcher) extractLinks(ctx context.Context, src config.SourceConfig, listingURL string) ([]string, error) {
	pattern, err := regexp.Compile(src.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("bad link pattern %q: %w", src.LinkPattern, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("listing returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	seen := map[string]struct{}{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || !pattern.MatchString(href) {
			return
		}
		abs := href
		if !helpers.IsAbsoluteURL(href) {
			resolved, err := helpers.ResolveURL(listingURL, href)
			if err != nil {
				return
			}
			abs = resolved
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}
