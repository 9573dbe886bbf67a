package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
	"github.com/joonhok/newsagent/internal/helpers"
)

const analyzerSystemPrompt = `You are a news analysis assistant for a news monitoring service.
You receive one article and return structured metadata about it.

RULES:
1. Base every field strictly on the article text; never invent facts.
2. Write the summary and one-liner in the language of the article.
3. importance_score reflects newsworthiness for a business audience, 1.0 (trivial) to 10.0 (major).

RESPONSE FORMAT:
Respond ONLY with a valid JSON object:
{
  "summary": "3-4 sentence summary",
  "keywords": ["5 to 10 keywords"],
  "sentiment": "positive|neutral|negative",
  "importance_score": 1.0,
  "refined_category": "one short category label",
  "entities": {"people": [], "organizations": [], "locations": []},
  "one_liner": "a single-sentence takeaway"
}
Do not include any other text or explanation.`

// AnalyzerAgent enriches a single article with summary, keywords,
// sentiment, importance, entities and a one-liner. It runs on the cheap
// model tier: one call per article is the high-volume path.
type AnalyzerAgent struct {
	provider  LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	model     string
}

// NewAnalyzerAgent creates the content analyzer agent.
func NewAnalyzerAgent(cfg *config.Config, provider LLMProvider, tele *telemetry.Telemetry) *AnalyzerAgent {
	model := cfg.LLM.Routing.Analysis
	if model == "" {
		model = cfg.LLM.Routing.Fallback
	}
	return &AnalyzerAgent{
		provider:  provider,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[ANALYZER-AGENT] ", log.LstdFlags),
		model:     model,
	}
}

// Type returns the task type this agent handles.
func (a *AnalyzerAgent) Type() string { return TaskTypeAnalyze }

type analyzerPayload struct {
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	Sentiment       string   `json:"sentiment"`
	ImportanceScore float64  `json:"importance_score"`
	RefinedCategory string   `json:"refined_category"`
	Entities        Entities `json:"entities"`
	OneLiner        string   `json:"one_liner"`
}

// Execute analyzes the article carried in task.Payload. LLM failures and
// malformed model output are reported through AgentResult, not the error
// return, so batch runs can continue past one bad article.
func (a *AnalyzerAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	start := time.Now()

	article, ok := task.Payload.(ArticleInput)
	if !ok {
		return AgentResult{}, fmt.Errorf("analyzer: unexpected payload type %T", task.Payload)
	}

	prompt := fmt.Sprintf(`ARTICLE
Title: %s
Source: %s
Category: %s
Published: %s

Body:
%s`, article.Title, article.Source, article.Category, article.PublishedAt.Format(time.RFC3339), truncate(article.Body, 8000))

	comp, err := a.provider.Send(ctx, []Message{{Role: "user", Content: prompt}}, analyzerSystemPrompt, a.model)
	if err != nil {
		return a.fail(task, start, comp, err.Error()), nil
	}

	analysis, err := a.decode(comp.Content)
	if err != nil {
		return a.fail(task, start, comp, err.Error()), nil
	}

	result := AgentResult{
		TaskID:    task.ID,
		AgentType: a.Type(),
		Success:   true,
		Output:    map[string]interface{}{"analysis": analysis},
		Cost:      CostRecord{Tokens: comp.Usage.InputTokens + comp.Usage.OutputTokens, Price: comp.Cost},
		Duration:  time.Since(start),
	}
	a.record(result, comp)
	return result, nil
}

// decode extracts and validates the analysis object from model output.
// A syntactically valid payload missing the required fields (summary,
// sentiment, importance) is a validation failure, not a partial result.
func (a *AnalyzerAgent) decode(content string) (Analysis, error) {
	raw, err := helpers.ExtractJSON(content)
	if err != nil {
		return Analysis{}, fmt.Errorf("no JSON object in model output: %w", err)
	}
	var payload analyzerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Analysis{}, fmt.Errorf("malformed analysis JSON: %w", err)
	}

	if strings.TrimSpace(payload.Summary) == "" {
		return Analysis{}, fmt.Errorf("analysis missing required field: summary")
	}
	sentiment := strings.ToLower(strings.TrimSpace(payload.Sentiment))
	switch sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	case "":
		return Analysis{}, fmt.Errorf("analysis missing required field: sentiment")
	default:
		return Analysis{}, fmt.Errorf("analysis has invalid sentiment %q", payload.Sentiment)
	}
	if payload.ImportanceScore == 0 {
		return Analysis{}, fmt.Errorf("analysis missing required field: importance_score")
	}
	score := payload.ImportanceScore
	if score < 1.0 {
		score = 1.0
	}
	if score > 10.0 {
		score = 10.0
	}

	return Analysis{
		Summary:         strings.TrimSpace(payload.Summary),
		Keywords:        payload.Keywords,
		Sentiment:       sentiment,
		ImportanceScore: score,
		RefinedCategory: strings.TrimSpace(payload.RefinedCategory),
		Entities:        payload.Entities,
		OneLiner:        strings.TrimSpace(payload.OneLiner),
		AnalyzedAt:      time.Now().UTC(),
	}, nil
}

func (a *AnalyzerAgent) fail(task AgentTask, start time.Time, comp Completion, msg string) AgentResult {
	a.logger.Printf("analysis failed for task %s: %s", task.ID, msg)
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

func (a *AnalyzerAgent) record(result AgentResult, comp Completion) {
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

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
