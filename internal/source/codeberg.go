package source

import (
	"context"
	"fmt"
	"strings"

	"code.gitea.io/sdk/gitea"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/log"
)

const ProviderCodeberg = "codeberg"

// Codeberg talks to the Gitea v1 API that Codeberg runs, through the Gitea
// SDK.
type Codeberg struct {
	base
	host string
}

func NewCodeberg(provider cfg.Provider, ingest cfg.Ingest, logger log.Logger) *Codeberg {
	// The SDK appends /api/v1 itself.
	host := strings.TrimSuffix(strings.TrimRight(provider.ApiUrl, "/"), "/api/v1")
	return &Codeberg{base: newBase(ProviderCodeberg, provider, ingest, logger), host: host}
}

// sdk returns an SDK client bound to ctx. The SDK keeps the context on
// the client, so each call gets its own; the version probe is skipped.
func (c *Codeberg) sdk(ctx context.Context) (*gitea.Client, error) {
	opts := []gitea.ClientOption{
		gitea.SetHTTPClient(c.client),
		gitea.SetContext(ctx),
		gitea.SetGiteaVersion(""),
	}
	if c.provider.AccessToken != "" {
		opts = append(opts, gitea.SetToken(c.provider.AccessToken))
	}
	return gitea.NewClient(c.host, opts...)
}

func (c *Codeberg) FetchPage(ctx context.Context, query string, page int) ([]NormalizedRepo, error) {
	var result []*gitea.Repository
	var resp *gitea.Response
	err := c.call(ctx, fmt.Sprintf("search %q page %d", query, page), func(ctx context.Context) error {
		client, err := c.sdk(ctx)
		if err != nil {
			return err
		}
		result, resp, err = client.SearchRepos(gitea.SearchRepoOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: c.provider.PerPage},
			Keyword:     query,
		})
		return err
	}, func(error) Kind { return classifyGitea(resp) })
	if err != nil {
		return nil, err
	}

	repos := make([]NormalizedRepo, 0, len(result))
	for _, r := range result {
		if r == nil || r.HTMLURL == "" {
			continue
		}
		var owner string
		if r.Owner != nil {
			owner = r.Owner.UserName
		}
		var description *string
		if r.Description != "" {
			d := r.Description
			description = &d
		}
		repos = append(repos, NormalizedRepo{
			Provider:       ProviderCodeberg,
			ProviderRepoID: r.ID,
			Owner:          owner,
			Url:            r.HTMLURL,
			Description:    description,
			Stars:          r.Stars,
			LastUpdated:    timePtr(r.Updated),
		})
	}
	return repos, nil
}

func (c *Codeberg) ListContents(ctx context.Context, repoURL string) ([]string, error) {
	owner, name, err := ownerAndName(repoURL)
	if err != nil {
		return nil, c.invalid("contents", err)
	}

	var entries []*gitea.ContentsResponse
	var resp *gitea.Response
	err = c.call(ctx, "contents "+owner+"/"+name, func(ctx context.Context) error {
		client, err := c.sdk(ctx)
		if err != nil {
			return err
		}
		entries, resp, err = client.ListContents(owner, name, "", "")
		return err
	}, func(error) Kind { return classifyGitea(resp) })
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e != nil && e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// classifyGitea reads the kind off the answer; the SDK's errors are plain
// strings.
func classifyGitea(resp *gitea.Response) Kind {
	if resp == nil {
		return KindTransient
	}
	return kindForResponse(resp.Response)
}
