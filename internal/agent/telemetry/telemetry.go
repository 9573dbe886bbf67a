package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joonhok/newsagent/config"
)

// Telemetry records scrape and agent events, tracks LLM spend and feeds
// the prometheus registry served at /metrics.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	totalCost   float64
	totalTokens int64
	modelCosts  map[string]float64

	stop     chan struct{}
	stopOnce sync.Once
}

var (
	articlesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_articles_found_total",
		Help: "Articles returned by fetchers before deduplication.",
	}, []string{"source", "kind"})
	articlesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_articles_saved_total",
		Help: "Articles persisted after deduplication.",
	}, []string{"source"})
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_fetch_failures_total",
		Help: "Fetch or parse failures skipped during ingestion.",
	}, []string{"source", "kind"})
	agentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_agent_executions_total",
		Help: "Agent executions by type and outcome.",
	}, []string{"agent", "outcome"})
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_llm_tokens_total",
		Help: "LLM tokens consumed by model.",
	}, []string{"model", "direction"})
	llmCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsagent_llm_cost_usd_total",
		Help: "Accumulated LLM spend in USD.",
	})
)

// AgentEvent represents one agent execution.
type AgentEvent struct {
	AgentType    string
	Success      bool
	Error        string
	Duration     time.Duration
	Cost         float64
	InputTokens  int64
	OutputTokens int64
	ModelUsed    string
}

// SourceEvent represents one fetcher pass against a source.
type SourceEvent struct {
	Source   string
	Kind     string
	Success  bool
	Results  int
	Duration time.Duration
}

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:     cfg,
		logger:     log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		modelCosts: make(map[string]float64),
		stop:       make(chan struct{}),
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startCostReporting()
	}
	return t
}

// RecordAgentEvent records an agent execution event.
func (t *Telemetry) RecordAgentEvent(event AgentEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	agentExecutions.WithLabelValues(event.AgentType, outcome).Inc()
	if event.ModelUsed != "" {
		llmTokens.WithLabelValues(event.ModelUsed, "input").Add(float64(event.InputTokens))
		llmTokens.WithLabelValues(event.ModelUsed, "output").Add(float64(event.OutputTokens))
	}

	if t.config.CostTracking {
		llmCost.Add(event.Cost)
		t.mu.Lock()
		t.totalCost += event.Cost
		t.totalTokens += event.InputTokens + event.OutputTokens
		if event.ModelUsed != "" {
			t.modelCosts[event.ModelUsed] += event.Cost
		}
		t.mu.Unlock()
	}

	t.logger.Printf("Agent Event: Type=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.AgentType, event.Success, event.Duration, event.Cost)
}

// RecordSourceEvent records a fetcher pass against a source.
func (t *Telemetry) RecordSourceEvent(event SourceEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	articlesFound.WithLabelValues(event.Source, event.Kind).Add(float64(event.Results))
	if !event.Success {
		fetchFailures.WithLabelValues(event.Source, event.Kind).Inc()
	}
	t.logger.Printf("Source Event: Source=%s, Kind=%s, Success=%t, Results=%d, Duration=%v",
		event.Source, event.Kind, event.Success, event.Results, event.Duration)
}

// RecordSaved records how many deduplicated articles a run persisted.
func (t *Telemetry) RecordSaved(source string, count int) {
	if t == nil || !t.config.Enabled {
		return
	}
	articlesSaved.WithLabelValues(source).Add(float64(count))
}

// CostSummary provides a snapshot of accumulated spend.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
}

// GetCostSummary returns the current cost summary.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.totalCost,
		TotalTokens: t.totalTokens,
		ModelCosts:  make(map[string]float64, len(t.modelCosts)),
	}
	for k, v := range t.modelCosts {
		summary.ModelCosts[k] = v
	}
	return summary
}

func (t *Telemetry) startCostReporting() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			costs := t.GetCostSummary()
			t.logger.Printf("Cost Report: Total=$%.4f, Tokens=%d", costs.TotalCost, costs.TotalTokens)
			for model, cost := range costs.ModelCosts {
				t.logger.Printf("  Model %s: $%.4f", model, cost)
			}
		}
	}
}

// Shutdown logs the final cost summary and stops background reporting.
func (t *Telemetry) Shutdown() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
	if t.config.Enabled && t.config.CostTracking {
		costs := t.GetCostSummary()
		t.logger.Printf("Final Cost Report: Total=$%.4f, Tokens=%d", costs.TotalCost, costs.TotalTokens)
	}
}
