// Package api manages ingestion runs: it starts them, stops them, and keeps
// at most one in flight per process.
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/crawler"
	"github.com/thep200/dothub-crawler/pkg/log"
)

var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Factory builds the crawler for one run from the config current at that
// time. onStage must be forwarded to the crawler's stage hook.
type Factory func(config *cfg.Config, onStage func(runID string, stage crawler.Stage)) (crawler.Crawler, error)

// CrawlStats is a snapshot of the current or last run.
type CrawlStats struct {
	IsRunning  bool            `json:"isRunning"`
	RunID      string          `json:"runId,omitempty"`
	Stage      crawler.Stage   `json:"stage"`
	StartTime  time.Time       `json:"startTime,omitempty"`
	Duration   string          `json:"duration,omitempty"`
	Runs       int             `json:"runs"`
	LastReport *crawler.Report `json:"lastReport,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
}

type IngestAPI struct {
	logger  log.Logger
	factory Factory

	mu         sync.RWMutex
	config     *cfg.Config
	crawling   bool
	cancel     context.CancelFunc
	crawlStats CrawlStats
	done       chan struct{}
}

func NewIngestAPI(config *cfg.Config, logger log.Logger, factory Factory) *IngestAPI {
	return &IngestAPI{
		logger:  logger,
		factory: factory,
		config:  config,
	}
}

// Run ingests synchronously. It fails with ErrRunInProgress when another run
// is in flight, and otherwise returns whatever the crawler returned.
func (a *IngestAPI) Run(ctx context.Context) (*crawler.Report, error) {
	ctx, c, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, c)
}

// Start ingests in the background and returns once the run is admitted.
func (a *IngestAPI) Start() error {
	ctx, c, err := a.begin(context.Background())
	if err != nil {
		return err
	}
	go func() {
		if _, err := a.run(ctx, c); err != nil {
			a.logger.Error(ctx, "Background ingestion ended with error: %v", err)
		}
	}()
	return nil
}

// Stop cancels the in-flight run. It reports false when nothing was running.
func (a *IngestAPI) Stop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.crawling || a.cancel == nil {
		return false
	}
	a.cancel()
	return true
}

// Wait blocks until the in-flight run, if any, has finished.
func (a *IngestAPI) Wait() {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (a *IngestAPI) Stats() CrawlStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.crawlStats
	if stats.IsRunning {
		stats.Duration = time.Since(stats.StartTime).Round(time.Millisecond).String()
	}
	return stats
}

// UpdateConfig takes effect from the next run on.
func (a *IngestAPI) UpdateConfig(config *cfg.Config) {
	a.mu.Lock()
	a.config = config
	a.mu.Unlock()
	a.logger.Info(context.Background(), "Ingestion config updated; applies to the next run")
}

func (a *IngestAPI) Config() *cfg.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// begin admits a run and builds its crawler under the lock, so two callers
// can never both get past it.
func (a *IngestAPI) begin(parent context.Context) (context.Context, crawler.Crawler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.crawling {
		return nil, nil, ErrRunInProgress
	}

	c, err := a.factory(a.config, a.onStage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build crawler: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	a.crawling = true
	a.cancel = cancel
	a.done = make(chan struct{})
	a.crawlStats = CrawlStats{
		IsRunning:  true,
		Stage:      crawler.Idle,
		StartTime:  time.Now(),
		Runs:       a.crawlStats.Runs + 1,
		LastReport: a.crawlStats.LastReport,
	}
	return ctx, c, nil
}

func (a *IngestAPI) run(ctx context.Context, c crawler.Crawler) (*crawler.Report, error) {
	report, err := c.Crawl(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	a.cancel = nil
	a.crawling = false
	a.crawlStats.IsRunning = false
	if report != nil {
		a.crawlStats.RunID = report.RunID
		a.crawlStats.Stage = report.Stage
		a.crawlStats.Duration = report.Duration().Round(time.Millisecond).String()
		a.crawlStats.LastReport = report
	}
	a.crawlStats.LastError = ""
	if err != nil {
		a.crawlStats.LastError = err.Error()
	}
	close(a.done)
	a.done = nil
	return report, err
}

func (a *IngestAPI) onStage(runID string, stage crawler.Stage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.crawlStats.RunID = runID
	a.crawlStats.Stage = stage
}
