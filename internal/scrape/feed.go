package scrape

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/helpers"
)

// FeedFetcher pulls articles out of RSS/Atom feeds. A feed that is gone
// or temporarily broken returns an error so the caller can count the
// failure; the sweep itself carries on past it.
type FeedFetcher struct {
	cfg    config.ScrapeConfig
	client *http.Client
	parser *gofeed.Parser
	logger *log.Logger
}

// NewFeedFetcher creates a feed fetcher with the configured timeout.
func NewFeedFetcher(cfg config.ScrapeConfig) *FeedFetcher {
	timeout := cfg.FeedTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FeedFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		logger: log.New(log.Writer(), "[FEED] ", log.LstdFlags),
	}
}

// Fetch downloads and parses one feed for a source category. A feed with
// no items is an empty slice; transport, status and parse failures are
// errors so they land in the failure counters.
func (f *FeedFetcher) Fetch(ctx context.Context, src config.SourceConfig, category, feedURL string) ([]RawArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Printf("%s/%s: feed fetch failed: %v", src.ID, category, err)
		return nil, fmt.Errorf("feed fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Printf("%s/%s: feed returned %d, skipping", src.ID, category, resp.StatusCode)
		return nil, fmt.Errorf("feed %s returned %d", feedURL, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		f.logger.Printf("%s/%s: feed parse failed: %v", src.ID, category, err)
		return nil, fmt.Errorf("feed parse %s: %w", feedURL, err)
	}

	articles := make([]RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		art, ok := f.convert(src, category, item)
		if !ok {
			continue
		}
		articles = append(articles, art)
	}
	return articles, nil
}

// convert maps one feed item to a RawArticle. Items without a title or
// link are dropped; a missing description degrades to a title-only body.
func (f *FeedFetcher) convert(src config.SourceConfig, category string, item *gofeed.Item) (RawArticle, bool) {
	if item.Title == "" || item.Link == "" {
		return RawArticle{}, false
	}
	hash, err := helpers.ContentHash(item.Link)
	if err != nil {
		f.logger.Printf("%s: unparseable item link %q: %v", src.ID, item.Link, err)
		return RawArticle{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	body = helpers.StripHTML(body)
	if body == "" {
		body = item.Title
	}

	published := time.Now().UTC()
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	}

	return RawArticle{
		Title:       helpers.StripHTML(item.Title),
		URL:         item.Link,
		Body:        body,
		Author:      author,
		SourceID:    src.ID,
		SourceKind:  KindFeed,
		Category:    category,
		ContentHash: hash,
		PublishedAt: published,
	}, true
}
