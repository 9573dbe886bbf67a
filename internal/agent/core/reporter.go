package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
)

const reporterSystemPrompt = `You are a news analyst writing a periodic digest for a business audience.
You receive pre-computed statistics and a list of analyzed articles.

RULES:
1. Open with a 2-3 sentence overview of the period.
2. Cover the dominant themes using the top keywords and the most important articles.
3. Note the overall sentiment balance.
4. Write in the language of the articles. Use markdown headings.
5. Do not restate the raw statistics verbatim; interpret them.`

// KeywordCount is one entry in the ranked keyword frequency list.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// ReportStats are the aggregate figures for a report period. They are
// computed locally from stored analyses, never by the model, so the same
// input always yields the same statistics.
type ReportStats struct {
	ArticleCount   int            `json:"article_count"`
	AnalyzedCount  int            `json:"analyzed_count"`
	TopKeywords    []KeywordCount `json:"top_keywords"`
	Sentiments     map[string]int `json:"sentiments"`
	MeanImportance float64        `json:"mean_importance"`
}

// ComputeReportStats aggregates keyword frequencies, sentiment counts
// and mean importance over the analyzed subset of articles. Keywords are
// case-folded before counting and ranked by count, ties broken
// alphabetically so the ordering is deterministic.
func ComputeReportStats(articles []Article) ReportStats {
	stats := ReportStats{
		ArticleCount: len(articles),
		Sentiments:   map[string]int{},
	}

	counts := map[string]int{}
	var importanceSum float64
	for _, art := range articles {
		if art.Analysis == nil {
			continue
		}
		stats.AnalyzedCount++
		stats.Sentiments[art.Analysis.Sentiment]++
		importanceSum += art.Analysis.ImportanceScore
		for _, kw := range art.Analysis.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				counts[kw]++
			}
		}
	}
	if stats.AnalyzedCount > 0 {
		stats.MeanImportance = importanceSum / float64(stats.AnalyzedCount)
	}

	ranked := make([]KeywordCount, 0, len(counts))
	for kw, n := range counts {
		ranked = append(ranked, KeywordCount{Keyword: kw, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Keyword < ranked[j].Keyword
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	stats.TopKeywords = ranked
	return stats
}

// ReporterAgent turns a set of analyzed articles into a narrative digest.
// The statistics are computed locally; only the prose comes from the
// model, on the quality tier.
type ReporterAgent struct {
	provider  LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	model     string
}

// NewReporterAgent creates the report generator agent.
func NewReporterAgent(cfg *config.Config, provider LLMProvider, tele *telemetry.Telemetry) *ReporterAgent {
	model := cfg.LLM.Routing.Report
	if model == "" {
		model = cfg.LLM.Routing.Fallback
	}
	return &ReporterAgent{
		provider:  provider,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[REPORTER-AGENT] ", log.LstdFlags),
		model:     model,
	}
}

// Type returns the task type this agent handles.
func (a *ReporterAgent) Type() string { return TaskTypeReport }

// Execute generates a report for the articles carried in task.Payload.
// Output carries both the narrative ("report") and the deterministic
// figures ("stats") so callers can render either independently.
func (a *ReporterAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	start := time.Now()

	input, ok := task.Payload.(ReportInput)
	if !ok {
		return AgentResult{}, fmt.Errorf("reporter: unexpected payload type %T", task.Payload)
	}
	if len(input.Articles) == 0 {
		return a.fail(task, start, Completion{}, "no articles in report period"), nil
	}

	stats := ComputeReportStats(input.Articles)

	comp, err := a.provider.Send(ctx, []Message{{Role: "user", Content: a.buildPrompt(input, stats)}}, reporterSystemPrompt, a.model)
	if err != nil {
		return a.fail(task, start, comp, err.Error()), nil
	}
	if strings.TrimSpace(comp.Content) == "" {
		return a.fail(task, start, comp, "empty report from model"), nil
	}

	result := AgentResult{
		TaskID:    task.ID,
		AgentType: a.Type(),
		Success:   true,
		Output: map[string]interface{}{
			"report": strings.TrimSpace(comp.Content),
			"stats":  stats,
		},
		Cost:     CostRecord{Tokens: comp.Usage.InputTokens + comp.Usage.OutputTokens, Price: comp.Cost},
		Duration: time.Since(start),
	}
	a.record(result, comp)
	return result, nil
}

func (a *ReporterAgent) buildPrompt(input ReportInput, stats ReportStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PERIOD: %s\n", input.Period)
	fmt.Fprintf(&sb, "ARTICLES: %d total, %d analyzed\n", stats.ArticleCount, stats.AnalyzedCount)
	fmt.Fprintf(&sb, "MEAN IMPORTANCE: %.1f\n", stats.MeanImportance)

	sb.WriteString("SENTIMENT: ")
	for _, s := range []string{SentimentPositive, SentimentNeutral, SentimentNegative} {
		fmt.Fprintf(&sb, "%s=%d ", s, stats.Sentiments[s])
	}
	sb.WriteString("\nTOP KEYWORDS: ")
	for _, kc := range stats.TopKeywords {
		fmt.Fprintf(&sb, "%s(%d) ", kc.Keyword, kc.Count)
	}
	sb.WriteString("\n\nARTICLES:\n")

	// Most important articles first so the model leads with them.
	sorted := make([]Article, len(input.Articles))
	copy(sorted, input.Articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		var si, sj float64
		if sorted[i].Analysis != nil {
			si = sorted[i].Analysis.ImportanceScore
		}
		if sorted[j].Analysis != nil {
			sj = sorted[j].Analysis.ImportanceScore
		}
		return si > sj
	})
	for i, art := range sorted {
		if i >= 30 {
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s", art.Source, art.Title)
		if art.Analysis != nil {
			fmt.Fprintf(&sb, " (importance %.1f, %s): %s", art.Analysis.ImportanceScore, art.Analysis.Sentiment, art.Analysis.OneLiner)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (a *ReporterAgent) fail(task AgentTask, start time.Time, comp Completion, msg string) AgentResult {
	a.logger.Printf("report generation failed for task %s: %s", task.ID, msg)
	result := AgentResult{
		TaskID:    task.ID,
		AgentType: a.Type(),
		Success:   false,
		Error:     msg,
		Cost:      CostRecord{Tokens: comp.Usage.InputTokens + comp.Usage.OutputTokens, Price: comp.Cost},
		Duration:  time.Since(start),
	}
	a.record(result, comp)
	return result
}

func (a *ReporterAgent) record(result AgentResult, comp Completion) {
	a.telemetry.RecordAgentEvent(telemetry.AgentEvent{
		AgentType:    a.Type(),
		Success:      result.Success,
		Error:        result.Error,
		Duration:     result.Duration,
		Cost:         result.Cost.Price,
		InputTokens:  comp.Usage.InputTokens,
		OutputTokens: comp.Usage.OutputTokens,
		ModelUsed:    a.model,
	})
}
