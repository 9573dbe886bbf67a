package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeStore serves canned candidates and records saved analyses.
type fakeStore struct {
	mu         sync.Mutex
	candidates []Article
	listErr    error
	saveErrs   map[string]error
	saved      map[string]Analysis
}

func (f *fakeStore) ListAnalysisCandidates(ctx context.Context, source string, limit int, force bool) ([]Article, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.candidates, nil
}

func (f *fakeStore) UpdateArticleAnalysis(ctx context.Context, id string, analysis Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErrs[id]; err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]Analysis{}
	}
	f.saved[id] = analysis
	return nil
}

// fakeAgent succeeds or fails per article ID, with a fixed cost either way.
type fakeAgent struct {
	mu      sync.Mutex
	failIDs map[string]bool
	cost    float64
	calls   int
}

func (f *fakeAgent) Type() string { return TaskTypeAnalyze }

func (f *fakeAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	input := task.Payload.(ArticleInput)
	cost := CostRecord{Tokens: 100, Price: f.cost}
	if f.failIDs[input.ID] {
		return AgentResult{TaskID: task.ID, AgentType: f.Type(), Success: false, Error: "model refused", Cost: cost}, nil
	}
	return AgentResult{
		TaskID:    task.ID,
		AgentType: f.Type(),
		Success:   true,
		Output: map[string]interface{}{"analysis": Analysis{
			Summary:         "summary of " + input.ID,
			Sentiment:       SentimentNeutral,
			ImportanceScore: 5.0,
			AnalyzedAt:      time.Now().UTC(),
		}},
		Cost: cost,
	}, nil
}

func batchCandidates(n int) []Article {
	arts := make([]Article, 0, n)
	for i := 1; i <= n; i++ {
		arts = append(arts, Article{ID: fmt.Sprintf("art-%d", i), Title: fmt.Sprintf("title %d", i), Source: "mk"})
	}
	return arts
}

func TestBatchRunPartialFailure(t *testing.T) {
	store := &fakeStore{candidates: batchCandidates(5)}
	agent := &fakeAgent{failIDs: map[string]bool{"art-3": true}, cost: 0.001}
	batch := NewBatchAnalyzer(store, agent, 5, 0)

	summary, err := batch.Run(context.Background(), "", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Analyzed != 4 || summary.Total != 5 {
		t.Fatalf("summary = %+v", summary)
	}
	// Failed attempt still consumed tokens, so all 5 costs are summed.
	if math.Abs(summary.TotalCost-0.005) > 1e-9 {
		t.Fatalf("total cost = %v", summary.TotalCost)
	}
	if len(store.saved) != 4 {
		t.Fatalf("saved %d analyses, want 4", len(store.saved))
	}
	if _, ok := store.saved["art-3"]; ok {
		t.Fatal("failed article must not be persisted")
	}
}

func TestBatchRunSaveFailureCountsAsFailed(t *testing.T) {
	store := &fakeStore{
		candidates: batchCandidates(2),
		saveErrs:   map[string]error{"art-2": fmt.Errorf("connection reset")},
	}
	batch := NewBatchAnalyzer(store, &fakeAgent{cost: 0.001}, 5, 0)

	summary, err := batch.Run(context.Background(), "", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Analyzed != 1 || summary.Total != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestBatchRunEmpty(t *testing.T) {
	store := &fakeStore{}
	agent := &fakeAgent{}
	batch := NewBatchAnalyzer(store, agent, 5, time.Second)

	summary, err := batch.Run(context.Background(), "", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 0 || summary.Analyzed != 0 || summary.TotalCost != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if agent.calls != 0 {
		t.Fatalf("agent called %d times for empty run", agent.calls)
	}
}

func TestBatchRunListError(t *testing.T) {
	store := &fakeStore{listErr: fmt.Errorf("db down")}
	batch := NewBatchAnalyzer(store, &fakeAgent{}, 5, 0)
	if _, err := batch.Run(context.Background(), "", 100, false); err == nil {
		t.Fatal("expected error when candidate listing fails")
	}
}

func TestBatchRunProcessesAllInBatches(t *testing.T) {
	store := &fakeStore{candidates: batchCandidates(12)}
	agent := &fakeAgent{cost: 0.002}
	batch := NewBatchAnalyzer(store, agent, 5, 0)

	summary, err := batch.Run(context.Background(), "", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Analyzed != 12 || summary.Total != 12 {
		t.Fatalf("summary = %+v", summary)
	}
	if agent.calls != 12 {
		t.Fatalf("agent calls = %d, want 12", agent.calls)
	}
	if math.Abs(summary.TotalCost-0.024) > 1e-9 {
		t.Fatalf("total cost = %v", summary.TotalCost)
	}
}
