package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joonhok/newsagent/config"
)

func listingSite(t *testing.T, detailHits *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/economy", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/article/100">기사 1</a>
			<a href="/article/101">기사 2</a>
			<a href="/article/100">기사 1 다시</a>
			<a href="/subscribe">구독</a>
		</body></html>`)
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		if detailHits != nil {
			*detailHits++
		}
		fmt.Fprintf(w, `<html><head>
			<meta property="og:title" content="기사 %s 제목">
			<meta property="article:published_time" content="2025-03-03T09:00:00Z">
			</head><body>
			<div id="articleBody">정부가 반도체 산업 지원 정책을 발표했다. 업계는 환영하는 분위기다.</div>
			</body></html>`, r.URL.Path)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/subscribe">구독</a></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestListingFetch(t *testing.T) {
	var hits int
	srv := listingSite(t, &hits)
	defer srv.Close()

	src := config.SourceConfig{
		ID:            "mk",
		Enabled:       true,
		LinkPattern:   `/article/\d+`,
		BodySelectors: []string{"#articleBody"},
	}

	l := NewListingFetcher(testScrapeConfig())
	articles, err := l.Fetch(context.Background(), src, "economy", srv.URL+"/economy")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// Duplicate link and the non-article link are dropped before hydration.
	if hits != 2 {
		t.Errorf("detail hits = %d, want 2", hits)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	for _, art := range articles {
		if art.SourceKind != KindHTML {
			t.Errorf("kind = %q", art.SourceKind)
		}
		if art.Body == art.Title {
			t.Errorf("body selector not used for %q", art.URL)
		}
		if art.PublishedAt.Year() != 2025 {
			t.Errorf("published time not extracted: %v", art.PublishedAt)
		}
	}
}

func TestListingFetchNoMatches(t *testing.T) {
	srv := listingSite(t, nil)
	defer srv.Close()

	src := config.SourceConfig{ID: "mk", Enabled: true, LinkPattern: `/article/\d+`}
	l := NewListingFetcher(testScrapeConfig())
	articles, err := l.Fetch(context.Background(), src, "economy", srv.URL+"/empty")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("got %d articles from linkless page", len(articles))
	}
}

func TestListingFetchDeadPage(t *testing.T) {
	src := config.SourceConfig{ID: "mk", Enabled: true, LinkPattern: `/article/\d+`}
	l := NewListingFetcher(testScrapeConfig())
	articles, err := l.Fetch(context.Background(), src, "economy", "http://127.0.0.1:1/economy")
	if err == nil {
		t.Fatal("dead listing must error")
	}
	if len(articles) != 0 {
		t.Fatalf("got %d articles from dead listing", len(articles))
	}
}

func TestListingFetchCapsLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/economy", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < 30; i++ {
			fmt.Fprintf(w, `<a href="/article/%d">기사</a>`, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>기사 제목</title></head><body>
			<div id="articleBody">본문 내용이 충분히 길게 들어있다.</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testScrapeConfig()
	cfg.MaxLinksPerListing = 5
	src := config.SourceConfig{ID: "mk", Enabled: true, LinkPattern: `/article/\d+`, BodySelectors: []string{"#articleBody"}}

	l := NewListingFetcher(cfg)
	articles, err := l.Fetch(context.Background(), src, "economy", srv.URL+"/economy")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 5 {
		t.Fatalf("got %d articles, want cap of 5", len(articles))
	}
}
