package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/pkg/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const ProviderGitlab = "gitlab"

// Gitlab talks to the GitLab REST v4 API through client-go.
type Gitlab struct {
	base
	gl *gitlab.Client
}

func NewGitlab(provider cfg.Provider, ingest cfg.Ingest, logger log.Logger) (*Gitlab, error) {
	b := newBase(ProviderGitlab, provider, ingest, logger)
	// Retries already happen in b.client.
	gl, err := gitlab.NewClient(provider.AccessToken,
		gitlab.WithBaseURL(provider.ApiUrl),
		gitlab.WithHTTPClient(b.client),
		gitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid gitlab api url %q: %w", provider.ApiUrl, err)
	}
	return &Gitlab{base: b, gl: gl}, nil
}

func (g *Gitlab) FetchPage(ctx context.Context, query string, page int) ([]NormalizedRepo, error) {
	opts := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{Page: page, PerPage: g.provider.PerPage},
		Search:      gitlab.Ptr(query),
	}

	var projects []*gitlab.Project
	err := g.call(ctx, fmt.Sprintf("search %q page %d", query, page), func(ctx context.Context) error {
		var err error
		projects, _, err = g.gl.Projects.ListProjects(opts, gitlab.WithContext(ctx))
		return err
	}, classifyGitlab)
	if err != nil {
		return nil, err
	}

	repos := make([]NormalizedRepo, 0, len(projects))
	for _, p := range projects {
		if p == nil || p.WebURL == "" {
			continue
		}
		var owner string
		if p.Namespace != nil {
			owner = p.Namespace.Name
			if owner == "" {
				owner = p.Namespace.Path
			}
		}
		var description *string
		if p.Description != "" {
			d := p.Description
			description = &d
		}
		repos = append(repos, NormalizedRepo{
			Provider:       ProviderGitlab,
			ProviderRepoID: int64(p.ID),
			Owner:          owner,
			Url:            p.WebURL,
			Description:    description,
			Stars:          p.StarCount,
			LastUpdated:    p.LastActivityAt,
		})
	}
	return repos, nil
}

// ListContents lists the repository tree root. The project is addressed by
// its full path, which also covers nested groups.
func (g *Gitlab) ListContents(ctx context.Context, repoURL string) ([]string, error) {
	projectPath, err := repoPath(repoURL)
	if err != nil {
		return nil, g.invalid("tree", err)
	}

	opts := &gitlab.ListTreeOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}
	var nodes []*gitlab.TreeNode
	err = g.call(ctx, "tree "+projectPath, func(ctx context.Context) error {
		var err error
		nodes, _, err = g.gl.Repositories.ListTree(projectPath, opts, gitlab.WithContext(ctx))
		return err
	}, classifyGitlab)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n != nil && n.Name != "" {
			names = append(names, n.Name)
		}
	}
	return names, nil
}

func classifyGitlab(err error) Kind {
	var respErr *gitlab.ErrorResponse
	if errors.As(err, &respErr) {
		return kindForResponse(respErr.Response)
	}
	return KindTransient
}
