package catalog

import "sync"

type Status int

const (
	Succeeded Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome is the result of one unit of work: one repository upsert or one
// tag link.
type Outcome struct {
	Key    string
	Status Status
	// Changed is set for tag links that wrote a new row.
	Changed bool
	Err     error
}

// Counts tallies outcomes by status.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// Changed counts outcomes that wrote a new row.
	Changed int `json:"changed"`
}

// Stats accumulates Counts. It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	counts Counts
}

func (s *Stats) Add(outcomes ...Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		switch o.Status {
		case Succeeded:
			s.counts.Succeeded++
		case Skipped:
			s.counts.Skipped++
		default:
			s.counts.Failed++
		}
		if o.Changed {
			s.counts.Changed++
		}
	}
}

func (s *Stats) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
