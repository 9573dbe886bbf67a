package scrape

import "time"

// Source kinds recorded on each article, matching where it was found.
const (
	KindFeed   = "feed"
	KindHTML   = "html"
	KindSearch = "search"
)

// RawArticle is the normalized output of every fetcher. The three
// fetchers differ in how they find articles, not in what they emit.
type RawArticle struct {
	Title       string
	URL         string
	Body        string
	Author      string
	SourceID    string
	SourceKind  string
	Category    string
	ContentHash string
	PublishedAt time.Time
}

// Options narrows a scrape run. Keyword mode is mutually exclusive with
// Categories: when Keywords is non-empty, Categories is ignored.
type Options struct {
	Sources    []string
	Categories []string
	Keywords   []string
}
