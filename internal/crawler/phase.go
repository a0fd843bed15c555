package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/thep200/dothub-crawler/internal/catalog"
	"github.com/thep200/dothub-crawler/internal/source"
)

type pageJob struct {
	slot   int
	source source.Source
	query  string
	page   int
}

// fetchPhase requests every (source, query, page) with at most Workers()
// calls in flight per source. Results keep the (source, query, page) order
// regardless of completion order. A failed page contributes nothing.
func (c *DotfilesCrawler) fetchPhase(ctx context.Context, report *Report) []source.NormalizedRepo {
	jobs := make([]pageJob, 0)
	for _, s := range c.Sources {
		for _, q := range s.Queries() {
			for page := 1; page <= c.pages; page++ {
				jobs = append(jobs, pageJob{slot: len(jobs), source: s, query: q, page: page})
			}
		}
	}

	slots := make([][]source.NormalizedRepo, len(jobs))
	workers := c.workerChannels()
	var fetched, failed int64
	var wg sync.WaitGroup

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		sem := workers[job.source.Name()]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(job pageJob) {
			defer wg.Done()
			defer func() { <-sem }()

			repos, err := job.source.FetchPage(ctx, job.query, job.page)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				c.Logger.Warn(ctx, "Page %d of %q on %s failed: %v", job.page, job.query, job.source.Name(), err)
				return
			}
			atomic.AddInt64(&fetched, 1)
			c.Logger.Debug(ctx, "Page %d of %q on %s: %d repositories", job.page, job.query, job.source.Name(), len(repos))
			slots[job.slot] = repos
		}(job)
	}
	wg.Wait()

	batch := make([]source.NormalizedRepo, 0)
	for _, repos := range slots {
		batch = append(batch, repos...)
	}
	report.PagesFetched = int(fetched)
	report.PagesFailed = int(failed)
	report.RecordsFetched = len(batch)
	c.Logger.Info(ctx, "Fetched %d repositories from %d pages (%d failed)", len(batch), fetched, failed)
	return batch
}

// detectPhase lists each distinct stored repository once and links what
// matched. When a url occurs more than once the last record's update time is
// used. Urls that were never stored are not listed.
func (c *DotfilesCrawler) detectPhase(ctx context.Context, report *Report, batch []source.NormalizedRepo, stored map[string]bool) {
	latest := make(map[string]source.NormalizedRepo, len(batch))
	order := make([]string, 0, len(batch))
	for _, r := range batch {
		if !stored[r.Url] {
			continue
		}
		if _, seen := latest[r.Url]; !seen {
			order = append(order, r.Url)
		}
		latest[r.Url] = r
	}

	workers := c.workerChannels()
	fallback := make(chan struct{}, 1)
	tagStats := &catalog.Stats{}
	var tagged, untagged, failed int64
	var wg sync.WaitGroup

	for _, url := range order {
		if ctx.Err() != nil {
			break
		}
		r := latest[url]
		sem := fallback
		if s := c.sourceFor(url); s != nil {
			sem = workers[s.Name()]
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(r source.NormalizedRepo, sem chan struct{}) {
			defer wg.Done()
			defer func() { <-sem }()

			tags, err := c.Detector.DetectSince(ctx, r.Url, r.LastUpdated)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				if !errors.Is(err, context.Canceled) {
					c.Logger.Warn(ctx, "Detection failed for %s, treating as untagged: %v", r.Url, err)
				}
			}
			if len(tags) == 0 {
				atomic.AddInt64(&untagged, 1)
				return
			}
			atomic.AddInt64(&tagged, 1)
			tagStats.Add(c.Reconciler.UpsertTagsForRepository(ctx, r.Url, tags)...)
		}(r, sem)
	}
	wg.Wait()

	report.Detection = DetectionCounts{
		Tagged:   int(tagged),
		Untagged: int(untagged),
		Failed:   int(failed),
	}
	report.Tags = tagStats.Counts()
}

// workerChannels returns one bounded channel per source, sized by the
// source's Workers.
func (c *DotfilesCrawler) workerChannels() map[string]chan struct{} {
	workers := make(map[string]chan struct{}, len(c.Sources))
	for _, s := range c.Sources {
		n := s.Workers()
		if n <= 0 {
			n = 1
		}
		workers[s.Name()] = make(chan struct{}, n)
	}
	return workers
}

func (c *DotfilesCrawler) sourceFor(url string) source.Source {
	for _, s := range c.Sources {
		if s.Owns(url) {
			return s
		}
	}
	return nil
}
