package crawler

import (
	"fmt"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/catalog"
	"github.com/thep200/dothub-crawler/internal/detector"
	"github.com/thep200/dothub-crawler/internal/source"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// Shared is what outlives a single run: the listing memo and the optional
// event sinks. Any of them may be nil.
type Shared struct {
	Memo         *detector.Memo
	Repositories catalog.Publisher
	Runs         catalog.Publisher
}

// FactoryCrawler wires a DotfilesCrawler from config: the enabled sources,
// the detector over them and a reconciler on database. It is called once
// per run; shared carries state across runs.
func FactoryCrawler(logger log.Logger, config *cfg.Config, database *db.Database, shared Shared) (*DotfilesCrawler, error) {
	sources, err := source.FromConfig(config, logger)
	if err != nil {
		return nil, fmt.Errorf("[ERROR] Failed to build sources: %w", err)
	}
	return FactoryCrawlerWithSources(logger, config, database, sources, shared)
}

// FactoryCrawlerWithSources is FactoryCrawler with the sources supplied.
func FactoryCrawlerWithSources(logger log.Logger, config *cfg.Config, database *db.Database, sources []source.Source, shared Shared) (*DotfilesCrawler, error) {
	det := detector.NewDetector(sources, detector.RulesFromConfig(config.Detector), shared.Memo, logger)
	reconciler, err := catalog.NewReconciler(config, logger, database, shared.Repositories)
	if err != nil {
		return nil, err
	}
	c, err := NewDotfilesCrawler(logger, config, database, sources, det, reconciler)
	if err != nil {
		return nil, err
	}
	c.RunPublisher = shared.Runs
	return c, nil
}
