package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/crawler"
	"github.com/thep200/dothub-crawler/internal/detector"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/internal/source/sourcetest"
	"github.com/thep200/dothub-crawler/pkg/db/dbtest"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// blockingCrawler reports each stage and then waits for release or ctx.
type blockingCrawler struct {
	onStage func(string, crawler.Stage)
	started chan struct{}
	release chan struct{}
	err     error
}

func (c *blockingCrawler) Crawl(ctx context.Context) (*crawler.Report, error) {
	report := &crawler.Report{RunID: "run-1", StartedAt: time.Now()}
	report.Stage = crawler.Fetching
	c.onStage(report.RunID, crawler.Fetching)
	close(c.started)

	select {
	case <-c.release:
	case <-ctx.Done():
		report.Stage = crawler.Aborted
		report.FinishedAt = time.Now()
		return report, ctx.Err()
	}
	report.FinishedAt = time.Now()
	if c.err != nil {
		report.Stage = crawler.Failed
		return report, c.err
	}
	report.Stage = crawler.Done
	return report, nil
}

type harness struct {
	api     *IngestAPI
	builds  int32
	last    *blockingCrawler
	configs []*cfg.Config
	err     error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.api = NewIngestAPI(&cfg.Config{App: cfg.App{Name: "first"}}, log.NewDiscardLogger(),
		func(config *cfg.Config, onStage func(string, crawler.Stage)) (crawler.Crawler, error) {
			atomic.AddInt32(&h.builds, 1)
			h.configs = append(h.configs, config)
			h.last = &blockingCrawler{
				onStage: onStage,
				started: make(chan struct{}),
				release: make(chan struct{}),
				err:     h.err,
			}
			return h.last, nil
		})
	return h
}

func TestRunCompletes(t *testing.T) {
	h := newHarness(t)

	done := make(chan struct{})
	var report *crawler.Report
	var err error
	go func() {
		report, err = h.api.Run(context.Background())
		close(done)
	}()

	waitStarted(t, h)
	stats := h.api.Stats()
	assert.True(t, stats.IsRunning)
	assert.Equal(t, crawler.Fetching, stats.Stage)
	assert.Equal(t, "run-1", stats.RunID)

	close(h.last.release)
	<-done
	require.NoError(t, err)
	assert.Equal(t, crawler.Done, report.Stage)

	stats = h.api.Stats()
	assert.False(t, stats.IsRunning)
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, crawler.Done, stats.Stage)
	assert.Same(t, report, stats.LastReport)
	assert.Empty(t, stats.LastError)
}

func TestSecondRunIsRejectedWhileOneIsInFlight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.api.Start())
	waitStarted(t, h)

	_, err := h.api.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, h.api.Start(), ErrRunInProgress)
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.builds))

	close(h.last.release)
	h.api.Wait()
	require.NoError(t, h.api.Start())
	waitStarted(t, h)
	close(h.last.release)
	h.api.Wait()
	assert.Equal(t, 2, h.api.Stats().Runs)
}

func TestStopAbortsRun(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.api.Stop(), "nothing to stop yet")

	require.NoError(t, h.api.Start())
	waitStarted(t, h)
	assert.True(t, h.api.Stop())
	h.api.Wait()

	stats := h.api.Stats()
	assert.False(t, stats.IsRunning)
	assert.Equal(t, crawler.Aborted, stats.Stage)
	assert.Contains(t, stats.LastError, "context canceled")
}

func TestRunErrorIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.err = crawler.ErrSchema
	require.NoError(t, h.api.Start())
	waitStarted(t, h)
	close(h.last.release)
	h.api.Wait()

	stats := h.api.Stats()
	assert.Equal(t, crawler.Failed, stats.Stage)
	assert.Equal(t, crawler.ErrSchema.Error(), stats.LastError)
}

func TestFactoryErrorReleasesGuard(t *testing.T) {
	calls := 0
	a := NewIngestAPI(&cfg.Config{}, log.NewDiscardLogger(),
		func(*cfg.Config, func(string, crawler.Stage)) (crawler.Crawler, error) {
			calls++
			return nil, errors.New("no sources configured")
		})
	_, err := a.Run(context.Background())
	assert.ErrorContains(t, err, "no sources configured")
	_, err = a.Run(context.Background())
	assert.NotErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, 2, calls)
}

func TestUpdateConfigAppliesToNextRun(t *testing.T) {
	h := newHarness(t)
	next := &cfg.Config{App: cfg.App{Name: "second"}}
	h.api.UpdateConfig(next)
	assert.Same(t, next, h.api.Config())

	require.NoError(t, h.api.Start())
	waitStarted(t, h)
	close(h.last.release)
	h.api.Wait()
	require.Len(t, h.configs, 1)
	assert.Equal(t, "second", h.configs[0].App.Name)
}

func waitStarted(t *testing.T, h *harness) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.api.mu.RLock()
		defer h.api.mu.RUnlock()
		return h.last != nil
	}, time.Second, time.Millisecond)
	select {
	case <-h.last.started:
	case <-time.After(time.Second):
		t.Fatal("crawler did not start")
	}
}

func TestRunsShareListingMemo(t *testing.T) {
	database, config := dbtest.NewSqlite(t)
	logger := log.NewDiscardLogger()
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	github := sourcetest.NewFake("github", "github.com")
	github.AddRepo("dotfiles", 1, source.NormalizedRepo{
		Owner: "alice", Url: "https://github.com/alice/dotfiles", Stars: 42, LastUpdated: &updated,
	}, "nvim", ".tmux.conf")

	memo, err := detector.NewMemo(config.Detector.CacheSize)
	require.NoError(t, err)
	shared := crawler.Shared{Memo: memo}
	ingest := NewIngestAPI(config, logger, func(config *cfg.Config, onStage func(string, crawler.Stage)) (crawler.Crawler, error) {
		c, err := crawler.FactoryCrawlerWithSources(logger, config, database, []source.Source{github}, shared)
		if err != nil {
			return nil, err
		}
		c.OnStage = onStage
		return c, nil
	})

	for i := 0; i < 2; i++ {
		report, err := ingest.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, crawler.Done, report.Stage)
		assert.Equal(t, 1, report.Detection.Tagged)
	}
	assert.Equal(t, 1, github.ListCalls())
	assert.Equal(t, 2, ingest.Stats().Runs)
}
