// Package catalog writes discovered repositories and their tags into the
// catalog. Every write is an idempotent upsert, and every record is its own
// unit of work, so one bad record never blocks the rest of a batch.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/model"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// Publisher receives a message for every repository written. It may be nil.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// RepositoryMessage is published after a repository upsert.
type RepositoryMessage struct {
	ID          uint   `json:"id"`
	Provider    string `json:"provider"`
	Url         string `json:"url"`
	Owner       string `json:"owner"`
	Stars       int    `json:"stars"`
	LastUpdated string `json:"last_updated,omitempty"`
}

type Reconciler struct {
	Logger    log.Logger
	RepoMd    *model.Repository
	Tagger    *model.Tagger
	publisher Publisher
}

func NewReconciler(config *cfg.Config, logger log.Logger, database *db.Database, publisher Publisher) (*Reconciler, error) {
	repoMd, err := model.NewRepository(config, logger, database)
	if err != nil {
		return nil, err
	}
	tagger, err := model.NewTagger(config, logger, database)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		Logger:    logger,
		RepoMd:    repoMd,
		Tagger:    tagger,
		publisher: publisher,
	}, nil
}

// UpsertRepository stores r keyed by its url. Repeating it with the same url
// converges on the last values supplied.
func (c *Reconciler) UpsertRepository(ctx context.Context, r source.NormalizedRepo) Outcome {
	id, err := c.RepoMd.Upsert(ctx, r.Url, r.Owner, r.Description, r.Stars, r.LastUpdated)
	if err != nil {
		if errors.Is(err, model.ErrInvalidRepository) {
			c.Logger.Warn(ctx, "Skipping repository from %s: %v", r.Provider, err)
			return Outcome{Key: r.Url, Status: Skipped, Err: err}
		}
		c.Logger.Error(ctx, "Failed to upsert repository %s: %v", r.Url, err)
		return Outcome{Key: r.Url, Status: Failed, Err: err}
	}

	if c.publisher != nil {
		msg := RepositoryMessage{
			ID:       id,
			Provider: r.Provider,
			Url:      r.Url,
			Owner:    r.Owner,
			Stars:    r.Stars,
		}
		if r.LastUpdated != nil {
			msg.LastUpdated = r.LastUpdated.UTC().Format(time.RFC3339)
		}
		if err := c.publisher.Publish(ctx, r.Url, msg); err != nil {
			// The row is already written; a lost event does not undo it.
			c.Logger.Warn(ctx, "Failed to publish repository %s: %v", r.Url, err)
		}
	}
	return Outcome{Key: r.Url, Status: Succeeded}
}

// BatchResult is what UpsertRepositories did. Stored holds every url that
// was written at least once.
type BatchResult struct {
	Counts
	Stored map[string]bool
}

// UpsertRepositories writes records one by one in order, so a later record
// for the same url overwrites an earlier one. No transaction spans the batch.
func (c *Reconciler) UpsertRepositories(ctx context.Context, records []source.NormalizedRepo) BatchResult {
	stats := &Stats{}
	stored := make(map[string]bool, len(records))
	for _, r := range records {
		if ctx.Err() != nil {
			break
		}
		outcome := c.UpsertRepository(ctx, r)
		if outcome.Status == Succeeded {
			stored[r.Url] = true
		}
		stats.Add(outcome)
	}
	return BatchResult{Counts: stats.Counts(), Stored: stored}
}

// UpsertTagsForRepository links every tag to the repository stored under
// url, creating tags on first sight. A url that was never stored produces no
// links and Skipped outcomes rather than an error.
func (c *Reconciler) UpsertTagsForRepository(ctx context.Context, url string, tags []string) []Outcome {
	outcomes := make([]Outcome, 0, len(tags))
	for _, tag := range tags {
		key := url + "#" + tag
		linked, err := c.Tagger.Link(ctx, url, tag)
		switch {
		case err == nil:
			outcomes = append(outcomes, Outcome{Key: key, Status: Succeeded, Changed: linked})
		case errors.Is(err, model.ErrRepositoryNotFound):
			c.Logger.Warn(ctx, "Skipping tag %s: %v", tag, err)
			outcomes = append(outcomes, Outcome{Key: key, Status: Skipped, Err: err})
		default:
			c.Logger.Error(ctx, "Failed to link tag %s to %s: %v", tag, url, err)
			outcomes = append(outcomes, Outcome{Key: key, Status: Failed, Err: err})
		}
	}
	return outcomes
}
