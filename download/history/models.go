package history

import "time"

// Run statuses.
const (
	RunRunning     = "running"
	RunSucceeded   = "succeeded"
	RunPartial     = "partial"
	RunInterrupted = "interrupted"
)

// Unit statuses.
const (
	UnitCompleted = "completed"
	UnitPartial   = "partial"
	UnitSkipped   = "skipped"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Destination string
	InputFile   string
	Mode        string
	ConfigHash  string
	Status      string
	Acquired    int
	Duplicate   int
	Skipped     int
	Failed      int
}

// Unit is the outcome of one reference within a run.
type Unit struct {
	Position  int // 1-based reference order
	Kind      string
	Reference string
	EntityID  string
	Title     string
	Status    string
	Accepted  int
	Duplicate int
	Failed    int
	Message   string
}
