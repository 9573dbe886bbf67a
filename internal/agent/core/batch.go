package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchSummary accounts for one batch analysis run. Analyzed counts only
// articles whose analysis was persisted; TotalCost includes spend from
// failed calls, since tokens were consumed either way.
type BatchSummary struct {
	Analyzed  int     `json:"analyzed"`
	Total     int     `json:"total"`
	TotalCost float64 `json:"total_cost"`
}

// BatchAnalyzer runs the analyzer agent over unanalyzed articles in
// fixed-width concurrent batches with a fixed pause between batches.
// One article failing never aborts the run.
type BatchAnalyzer struct {
	store      ArticleStore
	analyzer   Agent
	logger     *log.Logger
	batchSize  int
	batchDelay time.Duration
}

// NewBatchAnalyzer creates a batch orchestrator over the given store and
// analyzer agent.
func NewBatchAnalyzer(store ArticleStore, analyzer Agent, batchSize int, batchDelay time.Duration) *BatchAnalyzer {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &BatchAnalyzer{
		store:      store,
		analyzer:   analyzer,
		logger:     log.New(log.Writer(), "[BATCH-ANALYZE] ", log.LstdFlags),
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// Run analyzes up to limit pending articles from the given source (empty
// source means all sources). With force set, already-analyzed articles
// are re-analyzed.
func (b *BatchAnalyzer) Run(ctx context.Context, source string, limit int, force bool) (BatchSummary, error) {
	candidates, err := b.store.ListAnalysisCandidates(ctx, source, limit, force)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("list analysis candidates: %w", err)
	}

	summary := BatchSummary{Total: len(candidates)}
	if len(candidates) == 0 {
		b.logger.Printf("nothing to analyze")
		return summary, nil
	}
	b.logger.Printf("analyzing %d articles in batches of %d", len(candidates), b.batchSize)

	var mu sync.Mutex
	for offset := 0; offset < len(candidates); offset += b.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := offset + b.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for _, art := range candidates[offset:end] {
			art := art
			wg.Add(1)
			go func() {
				defer wg.Done()
				cost, ok := b.analyzeOne(ctx, art)
				mu.Lock()
				summary.TotalCost += cost
				if ok {
					summary.Analyzed++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		if end < len(candidates) && b.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(b.batchDelay):
			}
		}
	}

	b.logger.Printf("done: %d/%d analyzed, $%.4f", summary.Analyzed, summary.Total, summary.TotalCost)
	return summary, nil
}

// analyzeOne runs the analyzer for a single article and persists the
// result. It returns the dollar cost of the attempt and whether the
// analysis was saved.
func (b *BatchAnalyzer) analyzeOne(ctx context.Context, art Article) (float64, bool) {
	task := AgentTask{
		ID:   uuid.New().String(),
		Type: TaskTypeAnalyze,
		Payload: ArticleInput{
			ID:          art.ID,
			Title:       art.Title,
			Body:        art.Body,
			Source:      art.Source,
			Category:    art.Category,
			PublishedAt: art.PublishedAt,
		},
	}

	result, err := b.analyzer.Execute(ctx, task)
	if err != nil {
		b.logger.Printf("article %s: %v", art.ID, err)
		return result.Cost.Price, false
	}
	if !result.Success {
		b.logger.Printf("article %s: %s", art.ID, result.Error)
		return result.Cost.Price, false
	}

	analysis, ok := result.Output["analysis"].(Analysis)
	if !ok {
		b.logger.Printf("article %s: analyzer returned no analysis", art.ID)
		return result.Cost.Price, false
	}
	if err := b.store.UpdateArticleAnalysis(ctx, art.ID, analysis); err != nil {
		b.logger.Printf("article %s: save analysis: %v", art.ID, err)
		return result.Cost.Price, false
	}
	return result.Cost.Price, true
}
