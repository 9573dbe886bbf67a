package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/joonhok/newsagent/config"
)

// stubProvider returns canned completions in order and records prompts.
type stubProvider struct {
	completions []Completion
	errs        []error
	calls       int
	prompts     []string
}

func (s *stubProvider) Send(ctx context.Context, messages []Message, systemPrompt, model string) (Completion, error) {
	idx := s.calls
	s.calls++
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	if idx < len(s.errs) && s.errs[idx] != nil {
		return Completion{}, s.errs[idx]
	}
	if idx < len(s.completions) {
		return s.completions[idx], nil
	}
	return Completion{Content: "{}"}, nil
}

func (s *stubProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return 0
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.Routing.Analysis = "fast"
	cfg.LLM.Routing.Marketing = "fast"
	cfg.LLM.Routing.Report = "quality"
	cfg.LLM.Routing.Fallback = "fast"
	return cfg
}

func analyzeTask(title string) AgentTask {
	return AgentTask{
		ID:   "task-1",
		Type: TaskTypeAnalyze,
		Payload: ArticleInput{
			ID:          "art-1",
			Title:       title,
			Body:        "본문 내용",
			Source:      "hankyung",
			Category:    "economy",
			PublishedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestAnalyzerExecute(t *testing.T) {
	provider := &stubProvider{completions: []Completion{{
		Content: "```json\n" + `{
			"summary": "삼성전자가 반도체 투자를 확대한다.",
			"keywords": ["삼성전자", "반도체", "투자", "HBM", "AI"],
			"sentiment": "Positive",
			"importance_score": 12.5,
			"refined_category": "semiconductors",
			"entities": {"organizations": ["삼성전자"]},
			"one_liner": "삼성전자 반도체 투자 확대"
		}` + "\n```",
		Usage: Usage{InputTokens: 800, OutputTokens: 200},
		Cost:  0.0012,
	}}}

	agent := NewAnalyzerAgent(testConfig(), provider, nil)
	result, err := agent.Execute(context.Background(), analyzeTask("삼성전자 반도체 투자 확대"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}

	analysis, ok := result.Output["analysis"].(Analysis)
	if !ok {
		t.Fatalf("output missing analysis: %+v", result.Output)
	}
	if analysis.Sentiment != SentimentPositive {
		t.Errorf("sentiment not normalized: %q", analysis.Sentiment)
	}
	if analysis.ImportanceScore != 10.0 {
		t.Errorf("importance not clamped: %v", analysis.ImportanceScore)
	}
	if len(analysis.Keywords) != 5 {
		t.Errorf("keywords = %v", analysis.Keywords)
	}
	if analysis.AnalyzedAt.IsZero() {
		t.Error("AnalyzedAt not set")
	}
	if result.Cost.Tokens != 1000 || result.Cost.Price != 0.0012 {
		t.Errorf("cost = %+v", result.Cost)
	}
}

func TestAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing summary", `{"sentiment":"neutral","importance_score":5}`},
		{"missing sentiment", `{"summary":"ok","importance_score":5}`},
		{"invalid sentiment", `{"summary":"ok","sentiment":"ecstatic","importance_score":5}`},
		{"missing importance", `{"summary":"ok","sentiment":"neutral"}`},
		{"not json", `the article is about chips`},
		{"truncated json", `{"summary":"ok","sentiment":"neu`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{completions: []Completion{{Content: tt.content}}}
			agent := NewAnalyzerAgent(testConfig(), provider, nil)
			result, err := agent.Execute(context.Background(), analyzeTask("t"))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if result.Success {
				t.Fatalf("expected validation failure, got success")
			}
			if result.Error == "" {
				t.Fatal("failure result has no error message")
			}
			if result.Output != nil {
				t.Fatalf("failure result carries output: %+v", result.Output)
			}
		})
	}
}

func TestAnalyzerProviderFailure(t *testing.T) {
	provider := &stubProvider{errs: []error{NewLLMStatusError(429, "slow down")}}
	agent := NewAnalyzerAgent(testConfig(), provider, nil)
	result, err := agent.Execute(context.Background(), analyzeTask("t"))
	if err != nil {
		t.Fatalf("provider failure must not surface as execute error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
}

func TestAnalyzerBadPayload(t *testing.T) {
	agent := NewAnalyzerAgent(testConfig(), &stubProvider{}, nil)
	_, err := agent.Execute(context.Background(), AgentTask{ID: "x", Payload: "not an article"})
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatal("unexpected context error")
	}
}

func TestAnalyzerClampsLowScore(t *testing.T) {
	provider := &stubProvider{completions: []Completion{{
		Content: `{"summary":"ok","sentiment":"negative","importance_score":0.2}`,
	}}}
	agent := NewAnalyzerAgent(testConfig(), provider, nil)
	result, err := agent.Execute(context.Background(), analyzeTask("t"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	analysis := result.Output["analysis"].(Analysis)
	if analysis.ImportanceScore != 1.0 {
		t.Errorf("low score not clamped to 1.0: %v", analysis.ImportanceScore)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("반도체 ", 100)
	got := truncate(long, 100)
	if len(got) > 100 {
		t.Fatalf("len = %d, want <= 100", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated mid-rune: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Error("short string must pass through untouched")
	}
}
