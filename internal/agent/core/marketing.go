package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/agent/telemetry"
	"github.com/joonhok/newsagent/internal/helpers"
)

const marketingSystemPrompt = `You are a social media copywriter for a news monitoring service.
You receive one analyzed article and draft a post for each platform.

RULES:
1. twitter: under 280 characters, punchy, one or two emoji, 2-3 hashtags.
2. linkedin: professional tone, 2-3 short paragraphs, no emoji.
3. instagram: casual and engaging, emoji welcome, hashtags at the end.
4. Write in the language of the article. Never invent facts.

RESPONSE FORMAT:
Respond ONLY with a valid JSON object:
{
  "twitter": "...",
  "linkedin": "...",
  "instagram": "..."
}
Do not include any other text or explanation.`

// MarketingAgent drafts platform-specific social posts for an analyzed
// article. It reuses the analyzer's summary and keywords when present so
// the copy stays consistent with the stored analysis.
type MarketingAgent struct {
	provider  LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	model     string
}

// NewMarketingAgent creates the marketing copy agent.
func NewMarketingAgent(cfg *config.Config, provider LLMProvider, tele *telemetry.Telemetry) *MarketingAgent {
	model := cfg.LLM.Routing.Marketing
	if model == "" {
		model = cfg.LLM.Routing.Fallback
	}
	return &MarketingAgent{
		provider:  provider,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[MARKETING-AGENT] ", log.LstdFlags),
		model:     model,
	}
}

// Type returns the task type this agent handles.
func (a *MarketingAgent) Type() string { return TaskTypeMarketing }

type marketingPayload struct {
	Twitter   string `json:"twitter"`
	LinkedIn  string `json:"linkedin"`
	Instagram string `json:"instagram"`
}

// Execute drafts posts for the article carried in task.Payload.
func (a *MarketingAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	start := time.Now()

	article, ok := task.Payload.(ArticleInput)
	if !ok {
		return AgentResult{}, fmt.Errorf("marketing: unexpected payload type %T", task.Payload)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ARTICLE\nTitle: %s\nSource: %s\n", article.Title, article.Source)
	if article.Analysis != nil {
		fmt.Fprintf(&sb, "\nSummary: %s\n", article.Analysis.Summary)
		if len(article.Analysis.Keywords) > 0 {
			fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(article.Analysis.Keywords, ", "))
		}
		if article.Analysis.OneLiner != "" {
			fmt.Fprintf(&sb, "Takeaway: %s\n", article.Analysis.OneLiner)
		}
	} else {
		fmt.Fprintf(&sb, "\nBody:\n%s\n", truncate(article.Body, 4000))
	}

	comp, err := a.provider.Send(ctx, []Message{{Role: "user", Content: sb.String()}}, marketingSystemPrompt, a.model)
	if err != nil {
		return a.fail(task, start, comp, err.Error()), nil
	}

	posts, err := a.decode(comp.Content)
	if err != nil {
		return a.fail(task, start, comp, err.Error()), nil
	}

	result := AgentResult{
		TaskID:    task.ID,
		AgentType: a.Type(),
		Success:   true,
		Output: map[string]interface{}{
			"twitter":   posts.Twitter,
			"linkedin":  posts.LinkedIn,
			"instagram": posts.Instagram,
		},
		Cost:     CostRecord{Tokens: comp.Usage.InputTokens + comp.Usage.OutputTokens, Price: comp.Cost},
		Duration: time.Since(start),
	}
	a.record(result, comp)
	return result, nil
}

func (a *MarketingAgent) decode(content string) (marketingPayload, error) {
	raw, err := helpers.ExtractJSON(content)
	if err != nil {
		return marketingPayload{}, fmt.Errorf("no JSON object in model output: %w", err)
	}
	var payload marketingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return marketingPayload{}, fmt.Errorf("malformed marketing JSON: %w", err)
	}
	if payload.Twitter == "" && payload.LinkedIn == "" && payload.Instagram == "" {
		return marketingPayload{}, fmt.Errorf("marketing output has no posts")
	}
	return payload, nil
}

func (a *MarketingAgent) fail(task AgentTask, start time.Time, comp Completion, msg string) AgentResult {
	a.logger.Printf("marketing draft failed for task %s: %s", task.ID, msg)
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

func (a *MarketingAgent) record(result AgentResult, comp Completion) {
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
