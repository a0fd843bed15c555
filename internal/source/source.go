// Package source fetches dotfiles repositories from the forges the catalog
// covers and normalises them into one record shape.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/limiter"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// ErrSourceUnavailable wraps every failure a provider call can hit. One
// provider being down must never stop the others, so callers treat it as an
// empty result.
var ErrSourceUnavailable = errors.New("source unavailable")

// NormalizedRepo is a search hit in provider independent form.
type NormalizedRepo struct {
	Provider       string
	ProviderRepoID int64
	Owner          string
	Url            string
	Description    *string
	Stars          int
	LastUpdated    *time.Time
}

type Source interface {
	Name() string
	// Queries are the search variants the crawler issues against this source.
	Queries() []string
	// Workers bounds how many calls to this source may be in flight.
	Workers() int
	// Owns reports whether repoURL is hosted by this source.
	Owns(repoURL string) bool
	// FetchPage returns one page (1-based) of search results.
	FetchPage(ctx context.Context, query string, page int) ([]NormalizedRepo, error)
	// ListContents returns the names of the repository's top-level entries.
	ListContents(ctx context.Context, repoURL string) ([]string, error)
}

// base holds what every adapter shares: identity, the rate limited and
// retrying http client the SDKs run on, and the per-call timeout.
type base struct {
	name     string
	provider cfg.Provider
	client   *http.Client
	logger   log.Logger
	timeout  time.Duration
}

func newBase(name string, provider cfg.Provider, ingest cfg.Ingest, logger log.Logger) base {
	lim := limiter.NewRateLimiter(provider.RequestsPerSecond, ingest.ThrottleDelay)
	return base{
		name:     name,
		provider: provider,
		client:   newHTTPClient(name, NewPolicy(ingest.Retry), lim, logger),
		logger:   logger,
		timeout:  ingest.RequestTimeout,
	}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Queries() []string {
	return b.provider.Queries
}

func (b *base) Workers() int {
	if b.provider.Workers <= 0 {
		return 1
	}
	return b.provider.Workers
}

func (b *base) Owns(repoURL string) bool {
	u, err := url.Parse(repoURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host != "" && host == strings.ToLower(b.provider.WebHost)
}

// call runs fn under the request timeout. Any failure comes back as a
// *CallError whose kind comes from classify.
func (b *base) call(ctx context.Context, what string, fn func(ctx context.Context) error, classify func(error) Kind) error {
	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.logger.Debug(ctx, "Calling %s API: %s", b.name, what)
	err := fn(callCtx)
	if err == nil {
		return nil
	}
	kind, ok := contextKind(ctx, err)
	if !ok {
		kind = classify(err)
	}
	return &CallError{Provider: b.name, Op: what, Kind: kind, Err: err}
}

func (b *base) invalid(what string, err error) error {
	return &CallError{Provider: b.name, Op: what, Kind: KindClient, Err: err}
}

// repoPath returns the path of repoURL without leading/trailing slashes or
// a ".git" suffix, e.g. "owner/repo".
func repoPath(repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", err
	}
	p := strings.Trim(u.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	if p == "" {
		return "", fmt.Errorf("no repository path in %q", repoURL)
	}
	return p, nil
}

// ownerAndName splits a repository url into its first two path segments.
func ownerAndName(repoURL string) (string, string, error) {
	p, err := repoPath(repoURL)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("no owner/name in %q", repoURL)
	}
	return parts[0], parts[1], nil
}

// FromConfig builds the enabled sources in crawl order: GitHub, GitLab,
// Codeberg.
func FromConfig(config *cfg.Config, logger log.Logger) ([]Source, error) {
	sources := make([]Source, 0, 3)
	p := config.Providers
	if !p.Github.Disabled {
		gh, err := NewGithub(p.Github, config.Ingest, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, gh)
	}
	if !p.Gitlab.Disabled {
		gl, err := NewGitlab(p.Gitlab, config.Ingest, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, gl)
	}
	if !p.Codeberg.Disabled {
		sources = append(sources, NewCodeberg(p.Codeberg, config.Ingest, logger))
	}
	return sources, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
