package scrape

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/helpers"
)

// detailFetcher downloads article pages and extracts title and body.
// Listing and search fetchers share it: both discover links first and
// then hydrate them the same way.
type detailFetcher struct {
	cfg    config.ScrapeConfig
	client *http.Client
	logger *log.Logger
}

func newDetailFetcher(cfg config.ScrapeConfig, logger *log.Logger) *detailFetcher {
	timeout := cfg.DetailTimeout
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &detailFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// fetchAll hydrates links in fixed-width batches with a fixed pause
// between batches, so a burst of detail requests never hammers one
// site. Individual failures are logged and skipped.
func (d *detailFetcher) fetchAll(ctx context.Context, src config.SourceConfig, category, kind string, links []string) []RawArticle {
	batchSize := d.cfg.DetailBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	var mu sync.Mutex
	var articles []RawArticle
	for offset := 0; offset < len(links); offset += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := offset + batchSize
		if end > len(links) {
			end = len(links)
		}

		var wg sync.WaitGroup
		for _, link := range links[offset:end] {
			link := link
			wg.Add(1)
			go func() {
				defer wg.Done()
				art, ok := d.fetchOne(ctx, src, category, kind, link)
				if !ok {
					return
				}
				mu.Lock()
				articles = append(articles, art)
				mu.Unlock()
			}()
		}
		wg.Wait()

		if end < len(links) && d.cfg.DetailBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return articles
			case <-time.After(d.cfg.DetailBatchDelay):
			}
		}
	}
	return articles
}

func (d *detailFetcher) fetchOne(ctx context.Context, src config.SourceConfig, category, kind, link string) (RawArticle, bool) {
	hash, err := helpers.ContentHash(link)
	if err != nil {
		d.logger.Printf("%s: unparseable link %q: %v", src.ID, link, err)
		return RawArticle{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		d.logger.Printf("%s: build request for %s: %v", src.ID, link, err)
		return RawArticle{}, false
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Printf("%s: detail fetch %s: %v", src.ID, link, err)
		return RawArticle{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Printf("%s: detail fetch %s returned %d", src.ID, link, resp.StatusCode)
		return RawArticle{}, false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		d.logger.Printf("%s: parse %s: %v", src.ID, link, err)
		return RawArticle{}, false
	}

	title := extractTitle(doc)
	if title == "" {
		d.logger.Printf("%s: no title at %s, skipping", src.ID, link)
		return RawArticle{}, false
	}

	body := d.extractBody(doc, src, link)
	if body == "" {
		// Title-only degradation: better a thin record than a lost article.
		body = title
	}

	return RawArticle{
		Title:       title,
		URL:         link,
		Body:        body,
		SourceID:    src.ID,
		SourceKind:  kind,
		Category:    category,
		ContentHash: hash,
		PublishedAt: extractPublished(doc),
	}, true
}

// extractBody tries the source's configured selectors in order, then
// falls back to readability extraction. Results under the minimum body
// length are treated as extraction misses.
func (d *detailFetcher) extractBody(doc *goquery.Document, src config.SourceConfig, link string) string {
	minLen := d.cfg.MinBodyLength
	for _, sel := range src.BodySelectors {
		text := helpers.StripHTML(renderSelection(doc, sel))
		if len([]rune(text)) >= minLen {
			return text
		}
	}

	html, err := doc.Html()
	if err != nil {
		return ""
	}
	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len([]rune(text)) < minLen {
		return ""
	}
	return text
}

func renderSelection(doc *goquery.Document, selector string) string {
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if html, err := s.Html(); err == nil {
			parts = append(parts, html)
		}
	})
	return strings.Join(parts, " ")
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractPublished(doc *goquery.Document) time.Time {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
	} {
		if raw, ok := doc.Find(sel).Attr("content"); ok {
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Now().UTC()
}
