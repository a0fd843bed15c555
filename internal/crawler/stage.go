package crawler

import "fmt"

// Stage is where a run is. A run moves strictly forward through
// Idle, SchemaEnsured, Fetching, Reconciling, Detecting and Done. Failed is
// only entered when the schema cannot be ensured; Aborted when the run's
// context is cancelled.
type Stage int

const (
	Idle Stage = iota
	SchemaEnsured
	Fetching
	Reconciling
	Detecting
	Done
	Failed
	Aborted
)

var stageNames = map[Stage]string{
	Idle:          "idle",
	SchemaEnsured: "schema_ensured",
	Fetching:      "fetching",
	Reconciling:   "reconciling",
	Detecting:     "detecting",
	Done:          "done",
	Failed:        "failed",
	Aborted:       "aborted",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether a run in this stage has finished.
func (s Stage) Terminal() bool {
	return s == Done || s == Failed || s == Aborted
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}
