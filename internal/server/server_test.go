package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/dothub-crawler/api"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/crawler"
	"github.com/thep200/dothub-crawler/internal/model"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/internal/source/sourcetest"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/db/dbtest"
	"github.com/thep200/dothub-crawler/pkg/log"
)

func newTestServer(t *testing.T, factory api.Factory) (*httptest.Server, *db.Database, *cfg.Config) {
	t.Helper()
	database, config := dbtest.NewSqlite(t)
	logger := log.NewDiscardLogger()

	if factory == nil {
		github := sourcetest.NewFake("github", "github.com")
		github.AddRepo("dotfiles", 1, source.NormalizedRepo{
			Owner: "alice", Url: "https://github.com/alice/dotfiles", Stars: 42,
		}, "nvim", ".tmux.conf")
		github.AddRepo("dotfiles", 1, source.NormalizedRepo{
			Owner: "bob", Url: "https://github.com/bob/dotfiles", Stars: 9,
		}, "install.sh", "README.md")
		factory = func(config *cfg.Config, onStage func(string, crawler.Stage)) (crawler.Crawler, error) {
			c, err := crawler.FactoryCrawlerWithSources(logger, config, database, []source.Source{github}, crawler.Shared{})
			if err != nil {
				return nil, err
			}
			c.OnStage = onStage
			return c, nil
		}
	}

	ingest := api.NewIngestAPI(config, logger, factory)
	srv, err := NewServer(logger, config, database, ingest)
	require.NoError(t, err)
	router, err := srv.Router()
	require.NoError(t, err)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, database, config
}

func do(t *testing.T, method, url string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCronThenListing(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	var cron struct {
		Message string          `json:"message"`
		Report  *crawler.Report `json:"report"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/cron", &cron))
	assert.Equal(t, "Cron job completed successfully", cron.Message)
	require.NotNil(t, cron.Report)
	assert.Equal(t, 2, cron.Report.Repositories.Succeeded)

	var page model.Page
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/repositories", &page))
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Repositories, 2)
	assert.Equal(t, "https://github.com/alice/dotfiles", page.Repositories[0].Url)

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/repositories?dotfiles=tmux", &page))
	assert.EqualValues(t, 1, page.Total)

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/repositories?dotfiles=emacs", &page))
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Repositories)

	var confs struct {
		Configurations []string `json:"configurations"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/configurations", &confs))
	assert.Equal(t, []string{"neovim", "tmux", "vim"}, confs.Configurations)

	var stats api.CrawlStats
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/cron", &stats))
	assert.False(t, stats.IsRunning)
	assert.Equal(t, crawler.Done, stats.Stage)
	assert.Equal(t, 1, stats.Runs)
}

type stuckCrawler struct{ started chan struct{} }

func (c *stuckCrawler) Crawl(ctx context.Context) (*crawler.Report, error) {
	close(c.started)
	<-ctx.Done()
	return &crawler.Report{Stage: crawler.Aborted}, ctx.Err()
}

func TestCronConflictAndStop(t *testing.T) {
	stuck := &stuckCrawler{started: make(chan struct{})}
	ts, _, _ := newTestServer(t, func(*cfg.Config, func(string, crawler.Stage)) (crawler.Crawler, error) {
		return stuck, nil
	})

	type result struct {
		code int
		body struct {
			Message string          `json:"message"`
			Report  *crawler.Report `json:"report"`
		}
	}
	first := make(chan *result, 1)
	go func() {
		res := &result{}
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/cron", nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			defer resp.Body.Close()
			res.code = resp.StatusCode
			_ = json.NewDecoder(resp.Body).Decode(&res.body)
		}
		first <- res
	}()
	select {
	case <-stuck.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	var body map[string]string
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/api/cron", &body))
	assert.Contains(t, body["error"], "already in progress")
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/api/cron?async=1", nil))

	assert.Equal(t, http.StatusAccepted, do(t, http.MethodDelete, ts.URL+"/api/cron", nil))
	res := <-first
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "Cron job aborted", res.body.Message)
	require.NotNil(t, res.body.Report)
	assert.Equal(t, crawler.Aborted, res.body.Report.Stage)
	assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, ts.URL+"/api/cron", nil))
}

type gatedCrawler struct{ started, release chan struct{} }

func (c *gatedCrawler) Crawl(ctx context.Context) (*crawler.Report, error) {
	close(c.started)
	select {
	case <-c.release:
		return &crawler.Report{Stage: crawler.Done}, nil
	case <-ctx.Done():
		return &crawler.Report{Stage: crawler.Aborted}, ctx.Err()
	}
}

func stats(t *testing.T, ts *httptest.Server) api.CrawlStats {
	t.Helper()
	var out api.CrawlStats
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/cron", &out))
	return out
}

func TestCronOutlivesDisconnectedClient(t *testing.T) {
	gated := &gatedCrawler{started: make(chan struct{}), release: make(chan struct{})}
	ts, _, _ := newTestServer(t, func(*cfg.Config, func(string, crawler.Stage)) (crawler.Crawler, error) {
		return gated, nil
	})

	client := &http.Client{Timeout: 100 * time.Millisecond}
	_, err := client.Post(ts.URL+"/api/cron", "application/json", nil)
	require.Error(t, err)
	<-gated.started

	assert.Never(t, func() bool { return !stats(t, ts).IsRunning }, 300*time.Millisecond, 20*time.Millisecond)

	close(gated.release)
	require.Eventually(t, func() bool { return !stats(t, ts).IsRunning }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, crawler.Done, stats(t, ts).Stage)
}

func TestCronAsync(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	var body map[string]string
	require.Equal(t, http.StatusAccepted, do(t, http.MethodPost, ts.URL+"/api/cron?async=1", &body))
	assert.Equal(t, "Cron job started", body["message"])

	require.Eventually(t, func() bool {
		s := stats(t, ts)
		return !s.IsRunning && s.Runs == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, crawler.Done, stats(t, ts).Stage)

	var page model.Page
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/repositories", &page))
	assert.EqualValues(t, 2, page.Total)
}

func TestCronFailsWhenSchemaCannotBeEnsured(t *testing.T) {
	ts, _, _ := newTestServer(t, func(config *cfg.Config, onStage func(string, crawler.Stage)) (crawler.Crawler, error) {
		broken := *config
		broken.Database.Dsn = filepath.Join(t.TempDir(), "missing", "dir", "dothub.sqlite")
		database, err := db.NewDatabase(&broken)
		if err != nil {
			return nil, err
		}
		github := sourcetest.NewFake("github", "github.com")
		c, err := crawler.FactoryCrawlerWithSources(log.NewDiscardLogger(), &broken, database, []source.Source{github}, crawler.Shared{})
		if err != nil {
			return nil, err
		}
		c.OnStage = onStage
		return c, nil
	})

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, do(t, http.MethodPost, ts.URL+"/api/cron", &body))
	assert.Contains(t, body, "error")
	assert.Equal(t, crawler.Failed, stats(t, ts).Stage)
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestNewServerNeedsIngest(t *testing.T) {
	_, err := NewServer(log.NewDiscardLogger(), &cfg.Config{}, nil, nil)
	assert.Error(t, err)
}
