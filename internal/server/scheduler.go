package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/joonhok/newsagent/config"
	"github.com/joonhok/newsagent/internal/scrape"
)

// Scheduler triggers a full ingestion sweep followed by batch analysis
// on the configured cron schedule. With Redis enabled a SetNX lock keeps
// multiple instances from running the same tick.
type Scheduler struct {
	cron     string
	ingestor Ingestor
	batch    BatchRunner
	rdb      *redis.Client
	logger   *log.Logger
	stop     chan struct{}

	lastRun time.Time
}

// NewScheduler creates the ingestion scheduler.
func NewScheduler(cfg *config.Config, ingestor Ingestor, batch BatchRunner) *Scheduler {
	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	}
	return &Scheduler{
		cron:     cfg.Server.ScheduleCron,
		ingestor: ingestor,
		batch:    batch,
		rdb:      rdb,
		logger:   log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		stop:     make(chan struct{}),
		lastRun:  time.Now(),
	}
}

// Start runs the scheduler loop in the background.
func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Close stops the scheduler loop.
func (s *Scheduler) Close() {
	close(s.stop)
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}

func (s *Scheduler) tick() {
	if !isDue(s.cron, s.lastRun) {
		return
	}
	ctx := context.Background()

	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, "newsagent:sched:lock", "1", 10*time.Minute).Result()
		if err != nil {
			s.logger.Printf("scheduler lock unavailable, skipping tick: %v", err)
			return
		}
		if !ok {
			return
		}
		defer s.rdb.Del(ctx, "newsagent:sched:lock")
	}
	s.lastRun = time.Now()

	result, err := s.ingestor.Run(ctx, scrape.Options{})
	if err != nil {
		s.logger.Printf("scheduled scrape failed: %v", err)
		return
	}
	s.logger.Printf("scheduled scrape run %s: found=%d saved=%d", result.RunID, result.Found, result.Saved)

	if result.Saved > 0 {
		summary, err := s.batch.Run(ctx, "", result.Saved, false)
		if err != nil {
			s.logger.Printf("scheduled analysis failed: %v", err)
			return
		}
		s.logger.Printf("scheduled analysis: %d/%d analyzed, $%.4f", summary.Analyzed, summary.Total, summary.TotalCost)
	}
}

// isDue reports whether the cron schedule has fired since the last run.
// "@hourly" and "@daily" shortcuts are accepted alongside standard
// 5-field cron expressions; an invalid expression degrades to @daily.
func isDue(cronSpec string, last time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "":
		return false
	case "@hourly":
		return now.Sub(last) >= time.Hour
	case "@daily":
		return now.Sub(last) >= 24*time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(last) >= 24*time.Hour
		}
		return !expr.Next(last).After(now)
	}
}
