package core

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func analyzedArticle(title, sentiment string, importance float64, keywords ...string) Article {
	return Article{
		ID:     title,
		Title:  title,
		Source: "hankyung",
		Analysis: &Analysis{
			Summary:         "summary of " + title,
			Keywords:        keywords,
			Sentiment:       sentiment,
			ImportanceScore: importance,
		},
	}
}

func TestComputeReportStats(t *testing.T) {
	articles := []Article{
		analyzedArticle("a", SentimentPositive, 8.0, "반도체", "AI"),
		analyzedArticle("b", SentimentNegative, 4.0, "반도체", "금리"),
		analyzedArticle("c", SentimentPositive, 6.0, "ai", "환율"),
		{ID: "d", Title: "unanalyzed"},
	}

	stats := ComputeReportStats(articles)

	if stats.ArticleCount != 4 || stats.AnalyzedCount != 3 {
		t.Fatalf("counts = %d/%d", stats.AnalyzedCount, stats.ArticleCount)
	}
	if stats.Sentiments[SentimentPositive] != 2 || stats.Sentiments[SentimentNegative] != 1 {
		t.Errorf("sentiments = %v", stats.Sentiments)
	}
	if math.Abs(stats.MeanImportance-6.0) > 1e-9 {
		t.Errorf("mean importance = %v", stats.MeanImportance)
	}

	// Keywords case-fold ("AI" and "ai" merge) and ties break alphabetically.
	want := []KeywordCount{
		{"ai", 2},
		{"반도체", 2},
		{"금리", 1},
		{"환율", 1},
	}
	if !reflect.DeepEqual(stats.TopKeywords, want) {
		t.Errorf("top keywords = %v, want %v", stats.TopKeywords, want)
	}
}

func TestComputeReportStatsDeterministic(t *testing.T) {
	articles := []Article{
		analyzedArticle("a", SentimentNeutral, 5.0, "x", "y", "z"),
		analyzedArticle("b", SentimentNeutral, 5.0, "z", "y", "w"),
	}
	first := ComputeReportStats(articles)
	for i := 0; i < 20; i++ {
		if got := ComputeReportStats(articles); !reflect.DeepEqual(got, first) {
			t.Fatalf("iteration %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestComputeReportStatsEmpty(t *testing.T) {
	stats := ComputeReportStats(nil)
	if stats.ArticleCount != 0 || stats.AnalyzedCount != 0 || stats.MeanImportance != 0 {
		t.Fatalf("unexpected stats for empty input: %+v", stats)
	}
	if len(stats.TopKeywords) != 0 {
		t.Fatalf("unexpected keywords: %v", stats.TopKeywords)
	}
}

func TestReporterExecute(t *testing.T) {
	provider := &stubProvider{completions: []Completion{{
		Content: "## 주간 뉴스 요약\n반도체 관련 뉴스가 지배적이었다.",
		Usage:   Usage{InputTokens: 2000, OutputTokens: 400},
		Cost:    0.05,
	}}}
	agent := NewReporterAgent(testConfig(), provider, nil)

	result, err := agent.Execute(context.Background(), AgentTask{
		ID:   "report-1",
		Type: TaskTypeReport,
		Payload: ReportInput{
			Period: "2025-03-01 ~ 2025-03-07",
			Articles: []Article{
				analyzedArticle("a", SentimentPositive, 9.0, "반도체"),
				analyzedArticle("b", SentimentNeutral, 3.0, "금리"),
			},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["report"] == "" {
		t.Error("empty report narrative")
	}
	stats, ok := result.Output["stats"].(ReportStats)
	if !ok || stats.AnalyzedCount != 2 {
		t.Errorf("stats missing or wrong: %+v", result.Output["stats"])
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("expected one provider call, got %d", len(provider.prompts))
	}
}

func TestReporterEmptyPeriod(t *testing.T) {
	agent := NewReporterAgent(testConfig(), &stubProvider{}, nil)
	result, err := agent.Execute(context.Background(), AgentTask{
		ID:      "report-2",
		Type:    TaskTypeReport,
		Payload: ReportInput{Period: "empty"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for empty article set")
	}
}
