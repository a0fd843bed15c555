package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/catalog"
	"github.com/thep200/dothub-crawler/internal/detector"
	"github.com/thep200/dothub-crawler/internal/model"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// ErrSchema is returned when the catalog cannot be reached or migrated. It
// is the only failure that ends a run early.
var ErrSchema = errors.New("catalog schema unavailable")

type Crawler interface {
	Crawl(ctx context.Context) (*Report, error)
}

// RunMessage is published once a run is done.
type RunMessage struct {
	Report *Report `json:"report"`
}

// DotfilesCrawler runs one ingestion: ensure schema, fetch every
// (source, query, page), upsert the batch, detect and link tags.
type DotfilesCrawler struct {
	Logger     log.Logger
	Config     *cfg.Config
	Database   *db.Database
	Sources    []source.Source
	Detector   *detector.Detector
	Reconciler *catalog.Reconciler
	// RunPublisher receives a RunMessage when a run reaches Done. May be nil.
	RunPublisher catalog.Publisher
	// OnStage, when set, is called on every stage change.
	OnStage func(runID string, stage Stage)

	pages int
}

func NewDotfilesCrawler(
	logger log.Logger,
	config *cfg.Config,
	database *db.Database,
	sources []source.Source,
	det *detector.Detector,
	reconciler *catalog.Reconciler,
) (*DotfilesCrawler, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}
	pages := config.Ingest.Pages
	if pages <= 0 {
		pages = 10
	}
	return &DotfilesCrawler{
		Logger:     logger,
		Config:     config,
		Database:   database,
		Sources:    sources,
		Detector:   det,
		Reconciler: reconciler,
		pages:      pages,
	}, nil
}

func (c *DotfilesCrawler) enter(ctx context.Context, report *Report, stage Stage) {
	report.Stage = stage
	c.Logger.Info(ctx, "===== %s =====", stage)
	if c.OnStage != nil {
		c.OnStage(report.RunID, stage)
	}
}

// abortIfCancelled moves the run to Aborted when ctx is done.
func (c *DotfilesCrawler) abortIfCancelled(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		stage := report.Stage
		err = fmt.Errorf("run %s aborted during %s: %w", report.RunID, stage, err)
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		c.enter(ctx, report, Aborted)
		return err
	}
	return nil
}

func (c *DotfilesCrawler) Crawl(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Stage:     Idle,
		StartedAt: time.Now(),
	}
	ctx = log.WithRunID(ctx, report.RunID)
	c.Logger.Info(ctx, "Starting dotfiles ingestion over %d sources, %d pages each", len(c.Sources), c.pages)

	// Schema
	if err := c.ensureSchema(ctx); err != nil {
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		c.enter(ctx, report, Failed)
		c.Logger.Critical(ctx, "Ingestion failed: %v", err)
		return report, err
	}
	c.enter(ctx, report, SchemaEnsured)

	// Fetch
	if err := c.abortIfCancelled(ctx, report); err != nil {
		return report, err
	}
	c.enter(ctx, report, Fetching)
	batch := c.fetchPhase(ctx, report)

	// Reconcile
	if err := c.abortIfCancelled(ctx, report); err != nil {
		return report, err
	}
	c.enter(ctx, report, Reconciling)
	stored := c.Reconciler.UpsertRepositories(ctx, batch)
	report.Repositories = stored.Counts

	// Detect
	if err := c.abortIfCancelled(ctx, report); err != nil {
		return report, err
	}
	c.enter(ctx, report, Detecting)
	c.detectPhase(ctx, report, batch, stored.Stored)

	if err := c.abortIfCancelled(ctx, report); err != nil {
		return report, err
	}
	report.FinishedAt = time.Now()
	c.enter(ctx, report, Done)
	c.logCrawlResults(ctx, report)
	c.publishRun(ctx, report)
	return report, nil
}

func (c *DotfilesCrawler) ensureSchema(ctx context.Context) error {
	if err := c.Database.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := model.Migrate(ctx, c.Database); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

func (c *DotfilesCrawler) publishRun(ctx context.Context, report *Report) {
	if c.RunPublisher == nil {
		return
	}
	if err := c.RunPublisher.Publish(ctx, report.RunID, RunMessage{Report: report}); err != nil {
		c.Logger.Warn(ctx, "Failed to publish run report: %v", err)
	}
}

func (c *DotfilesCrawler) logCrawlResults(ctx context.Context, report *Report) {
	c.Logger.Info(ctx, "==== INGESTION RESULTS ====")
	c.Logger.Info(ctx, "Started: %s", report.StartedAt.Format(time.RFC3339))
	c.Logger.Info(ctx, "Finished: %s (%v)", report.FinishedAt.Format(time.RFC3339), report.Duration().Round(time.Millisecond))
	c.Logger.Info(ctx, "Pages fetched: %d, failed: %d, records: %d", report.PagesFetched, report.PagesFailed, report.RecordsFetched)
	c.Logger.Info(ctx, "Repositories upserted: %d, skipped: %d, failed: %d",
		report.Repositories.Succeeded, report.Repositories.Skipped, report.Repositories.Failed)
	c.Logger.Info(ctx, "Detection tagged: %d, untagged: %d, listing failed: %d",
		report.Detection.Tagged, report.Detection.Untagged, report.Detection.Failed)
	c.Logger.Info(ctx, "Tag links written: %d, skipped: %d, failed: %d",
		report.Tags.Changed, report.Tags.Skipped, report.Tags.Failed)
}
