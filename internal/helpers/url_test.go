package helpers

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/news/../economy/latest",
			want: "https://example.com/economy/latest",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://news.example.com:80/article?id=123&utm_source=rss#comments",
			want: "http://news.example.com/article?id=123",
		},
		{
			name: "sorts query parameters and preserves trailing slash",
			in:   "https://example.com/path/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/path/?a=1&b=2",
		},
		{
			name: "handles schemeless url with double slash",
			in:   "//news.example.com/view/42?utm_medium=email",
			want: "https://news.example.com/view/42",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	if _, err := CanonicalURL(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := CanonicalURL(":///invalid"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	t.Parallel()
	url := "https://News.example.com/Article?utm_campaign=foo&a=1&b=2"
	h1, err := ContentHash(url)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h2, err := ContentHash(strings.ReplaceAll(url, "https://", "HTTPS://"))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 == "" || len(h1) != 64 {
		t.Fatalf("expected 64-char hex digest, got %q", h1)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %s vs %s", h1, h2)
	}
	h3, err := ContentHash("https://news.example.com/other")
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("distinct urls must not collide")
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()
	got, err := ResolveURL("https://news.example.com/list", "/view/99")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if got != "https://news.example.com/view/99" {
		t.Fatalf("ResolveURL got %q", got)
	}
	if !IsAbsoluteURL(got) {
		t.Fatalf("expected %q to be absolute", got)
	}
	if IsAbsoluteURL("/relative/only") {
		t.Fatalf("relative path must not be absolute")
	}
}
