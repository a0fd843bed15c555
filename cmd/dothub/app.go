package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/crawler"
	"github.com/thep200/dothub-crawler/internal/detector"
	"github.com/thep200/dothub-crawler/pkg/db"
	"github.com/thep200/dothub-crawler/pkg/kafka"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// app holds what every command needs: config, logger, database, the listing
// memo shared by every run and the optional kafka producers.
type app struct {
	loader    *cfg.ViperLoader
	config    *cfg.Config
	logger    log.Logger
	database  *db.Database
	producers []*kafka.Producer
	shared    crawler.Shared
}

func newApp(opts *rootOptions, watch bool) (*app, error) {
	paths := []string{}
	if opts.configDir != "" {
		paths = append(paths, opts.configDir)
	}
	loader, err := cfg.NewViperLoader(watch, paths...)
	if err != nil {
		return nil, err
	}
	config, err := loader.Load()
	if err != nil {
		return nil, err
	}

	level := config.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger, err := log.NewCharmLogger(os.Stderr, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	database, err := db.NewDatabase(config)
	if err != nil {
		return nil, err
	}

	memo, err := detector.NewMemo(config.Detector.CacheSize)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create listing memo: %w", err)
	}

	a := &app{loader: loader, config: config, logger: logger, database: database}
	a.shared.Memo = memo
	if err := a.openProducers(); err != nil {
		_ = database.Close()
		return nil, err
	}
	return a, nil
}

// openProducers enables event publishing when kafka brokers are configured.
func (a *app) openProducers() error {
	ctx := context.Background()
	repos, err := kafka.NewProducer(a.config, a.logger, a.config.Kafka.TopicRepo)
	if errors.Is(err, kafka.ErrNoBrokers) {
		a.logger.Info(ctx, "Kafka not configured; event publishing is off")
		return nil
	}
	if err != nil {
		return err
	}
	runs, err := kafka.NewProducer(a.config, a.logger, a.config.Kafka.TopicRun)
	if err != nil {
		_ = repos.Close()
		return err
	}
	a.producers = []*kafka.Producer{repos, runs}
	a.shared.Repositories = repos
	a.shared.Runs = runs
	a.logger.Info(ctx, "Publishing events to %s and %s", repos.Topic(), runs.Topic())
	return nil
}

// crawlerFactory builds a crawler per run from the config current then.
func (a *app) crawlerFactory(config *cfg.Config, onStage func(string, crawler.Stage)) (crawler.Crawler, error) {
	c, err := crawler.FactoryCrawler(a.logger, config, a.database, a.shared)
	if err != nil {
		return nil, err
	}
	c.OnStage = onStage
	return c, nil
}

func (a *app) Close() {
	for _, p := range a.producers {
		if err := p.Close(); err != nil {
			a.logger.Warn(context.Background(), "Failed to close producer %s: %v", p.Topic(), err)
		}
	}
	if err := a.database.Close(); err != nil {
		a.logger.Warn(context.Background(), "Failed to close database: %v", err)
	}
}
