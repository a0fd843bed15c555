package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/log"
	"golang.org/x/oauth2"
)

const ProviderGithub = "github"

// Github uses the GitHub REST API through go-github.
type Github struct {
	base
	gh *github.Client
}

func NewGithub(provider cfg.Provider, ingest cfg.Ingest, logger log.Logger) (*Github, error) {
	b := newBase(ProviderGithub, provider, ingest, logger)

	httpClient := b.client
	if provider.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, b.client)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: provider.AccessToken})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	gh := github.NewClient(httpClient)
	if provider.ApiUrl != "" {
		apiUrl := provider.ApiUrl
		if !strings.HasSuffix(apiUrl, "/") {
			apiUrl += "/"
		}
		baseUrl, err := url.Parse(apiUrl)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url %q: %w", provider.ApiUrl, err)
		}
		gh.BaseURL = baseUrl
	}

	return &Github{base: b, gh: gh}, nil
}

func (g *Github) FetchPage(ctx context.Context, query string, page int) ([]NormalizedRepo, error) {
	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: g.provider.PerPage},
	}

	var result *github.RepositoriesSearchResult
	err := g.call(ctx, fmt.Sprintf("search %q page %d", query, page), func(ctx context.Context) error {
		var err error
		result, _, err = g.gh.Search.Repositories(ctx, query, opts)
		return err
	}, classifyGithub)
	if err != nil {
		return nil, err
	}

	if page*g.provider.PerPage > 1000 {
		g.logger.Warn(ctx, "GitHub API only provides access to the first 1,000 search results")
	}

	repos := make([]NormalizedRepo, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		if r == nil || r.GetHTMLURL() == "" {
			continue
		}
		var updated *time.Time
		if r.UpdatedAt != nil {
			t := r.UpdatedAt.Time
			updated = &t
		}
		repos = append(repos, NormalizedRepo{
			Provider:       ProviderGithub,
			ProviderRepoID: r.GetID(),
			Owner:          r.GetOwner().GetLogin(),
			Url:            r.GetHTMLURL(),
			Description:    r.Description,
			Stars:          r.GetStargazersCount(),
			LastUpdated:    updated,
		})
	}
	return repos, nil
}

func (g *Github) ListContents(ctx context.Context, repoURL string) ([]string, error) {
	owner, name, err := ownerAndName(repoURL)
	if err != nil {
		return nil, g.invalid("contents", err)
	}

	var entries []*github.RepositoryContent
	err = g.call(ctx, "contents "+owner+"/"+name, func(ctx context.Context) error {
		var err error
		_, entries, _, err = g.gh.Repositories.GetContents(ctx, owner, name, "", nil)
		return err
	}, classifyGithub)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.GetName() != "" {
			names = append(names, e.GetName())
		}
	}
	return names, nil
}

// classifyGithub maps go-github's typed errors onto a Kind. The client
// itself may refuse a call while a known rate limit is exhausted; that
// surfaces as *github.RateLimitError without any request being sent.
func classifyGithub(err error) Kind {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return KindRateLimited
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return KindRateLimited
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return kindForResponse(respErr.Response)
	}
	return KindTransient
}
