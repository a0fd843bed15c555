package crawler

import (
	"time"

	"github.com/thep200/dothub-crawler/internal/catalog"
)

type DetectionCounts struct {
	// Tagged repositories had at least one tag detected.
	Tagged int `json:"tagged"`
	// Untagged repositories were listed but matched no rule.
	Untagged int `json:"untagged"`
	// Failed repositories could not be listed; they count as untagged.
	Failed int `json:"failed"`
}

// Report summarises one run. A run whose sources or records degraded still
// ends in Done; the counts are the only trace of it.
type Report struct {
	RunID          string          `json:"run_id"`
	Stage          Stage           `json:"stage"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	PagesFetched   int             `json:"pages_fetched"`
	PagesFailed    int             `json:"pages_failed"`
	RecordsFetched int             `json:"records_fetched"`
	Repositories   catalog.Counts  `json:"repositories"`
	Detection      DetectionCounts `json:"detection"`
	Tags           catalog.Counts  `json:"tags"`
	Error          string          `json:"error,omitempty"`
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
