package core

import (
	"context"
	"time"
)

// Agent task types.
const (
	TaskTypeAnalyze   = "analyze"
	TaskTypeMarketing = "marketing"
	TaskTypeReport    = "report"
)

// Sentiment values the analyzer may emit.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// AgentTask represents a unit of work handed to an agent. Payload is an
// agent-specific input struct; Priority is advisory only — nothing
// currently schedules by it.
type AgentTask struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
	Payload  interface{}
}

// CostRecord accumulates tokens and dollar spend for one or more calls.
type CostRecord struct {
	Tokens int64   `json:"tokens"`
	Price  float64 `json:"price"`
}

// Add folds another cost record into c.
func (c *CostRecord) Add(other CostRecord) {
	c.Tokens += other.Tokens
	c.Price += other.Price
}

// AgentResult represents the outcome of one agent execution. Exactly one
// of Output/Error is populated, matching Success.
type AgentResult struct {
	TaskID    string                 `json:"task_id"`
	AgentType string                 `json:"agent_type"`
	Success   bool                   `json:"success"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Cost      CostRecord             `json:"cost"`
	Duration  time.Duration          `json:"duration"`
}

// Agent is the capability contract every concrete agent implements.
// LLM and validation failures surface as AgentResult{Success: false};
// the error return is reserved for malformed tasks.
type Agent interface {
	Execute(ctx context.Context, task AgentTask) (AgentResult, error)
	Type() string
}

// Entities groups named entities extracted from an article.
type Entities struct {
	People        []string `json:"people,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
}

// Analysis is the enrichment record attached to an article. It is
// written all-or-nothing: either every required field (Summary,
// Sentiment, ImportanceScore) is present, or none of it is persisted.
type Analysis struct {
	Summary         string    `json:"summary"`
	Keywords        []string  `json:"keywords,omitempty"`
	Sentiment       string    `json:"sentiment"`
	ImportanceScore float64   `json:"importance_score"`
	RefinedCategory string    `json:"refined_category,omitempty"`
	Entities        Entities  `json:"entities,omitempty"`
	OneLiner        string    `json:"one_liner,omitempty"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Article is the persisted article view the agents and orchestrators
// operate on. The store owns the full aggregate; this is the read model.
type Article struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Body        string    `json:"body"`
	Author      string    `json:"author,omitempty"`
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
	Analysis    *Analysis `json:"analysis,omitempty"`
}

// ArticleInput is the analyzer/marketing task payload.
type ArticleInput struct {
	ID          string
	Title       string
	Body        string
	Source      string
	Category    string
	PublishedAt time.Time
	Analysis    *Analysis
}

// ReportInput is the report generator task payload.
type ReportInput struct {
	Articles []Article
	Period   string
}

// ArticleStore is the persistence contract the batch orchestrator
// consumes. The Postgres store implements it.
type ArticleStore interface {
	ListAnalysisCandidates(ctx context.Context, source string, limit int, force bool) ([]Article, error)
	UpdateArticleAnalysis(ctx context.Context, id string, analysis Analysis) error
}

// Message represents one chat message sent to the LLM provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Completion is the provider response for one prompt dispatch.
type Completion struct {
	Content string
	Usage   Usage
	Model   string
	Cost    float64
}

// LLMProvider is the contract for LLM backends. Send prepends
// systemPrompt to messages and returns the completion with usage and
// the computed dollar cost. Failures are *LLMError values classified as
// auth/credit, rate-limit or generic.
type LLMProvider interface {
	Send(ctx context.Context, messages []Message, systemPrompt, model string) (Completion, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}
