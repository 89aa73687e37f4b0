package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/AJMSD/raga/download/orchestrator"
)

// Tracker records the current run into a Store as orchestrator events arrive,
// so an interrupted run still leaves its completed units behind.
type Tracker struct {
	store     *Store
	retention int

	mu      sync.Mutex
	current *Run
	units   map[int]*Unit
}

// NewTracker creates a tracker. retention is the number of runs kept; zero
// keeps every run.
func NewTracker(store *Store, retention int) *Tracker {
	return &Tracker{store: store, retention: retention}
}

// StartRun begins tracking a new run and returns it with its ID assigned.
func (t *Tracker) StartRun(ctx context.Context, run Run) (Run, error) {
	started, err := t.store.StartRun(ctx, run)
	if err != nil {
		return Run{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &started
	t.units = make(map[int]*Unit)
	log.Printf("INFO: history_run_started run_id=%s", started.ID)
	return started, nil
}

// CurrentRun returns a copy of the run being tracked, or nil.
func (t *Tracker) CurrentRun() *Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	runCopy := *t.current
	return &runCopy
}

// Observe is an orchestrator.Observer.
func (t *Tracker) Observe(e orchestrator.Event) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return
	}
	runID := t.current.ID
	position := e.Index + 1

	var record *Unit
	switch e.Kind {
	case orchestrator.EventUnitStart:
		t.units[position] = &Unit{
			Position:  position,
			Kind:      string(e.Ref.Kind),
			Reference: e.Ref.Raw,
		}
	case orchestrator.EventUnitResolved:
		if u := t.units[position]; u != nil && e.Entity != nil {
			u.EntityID = e.Entity.ID()
			u.Title = e.Entity.Title()
		}
	case orchestrator.EventTrackState:
		if u := t.units[position]; u != nil {
			switch e.State {
			case orchestrator.StateAccepted:
				u.Accepted++
			case orchestrator.StateDuplicate:
				u.Duplicate++
			case orchestrator.StateFailed:
				u.Failed++
			}
		}
	case orchestrator.EventUnitSkipped:
		if u := t.units[position]; u != nil {
			u.Status = UnitSkipped
			if e.Err != nil {
				u.Message = e.Err.Error()
			}
			record = u
		}
	case orchestrator.EventUnitDone:
		if u := t.units[position]; u != nil {
			u.Status = UnitCompleted
			if u.Failed > 0 {
				u.Status = UnitPartial
				u.Message = fmt.Sprintf("%d track(s) failed", u.Failed)
			}
			record = u
		}
	}
	var unit Unit
	if record != nil {
		unit = *record
		delete(t.units, position)
	}
	t.mu.Unlock()

	if record == nil {
		return
	}
	if err := t.store.RecordUnit(context.Background(), runID, unit); err != nil {
		log.Printf("WARN: history_unit_failed run_id=%s position=%d error=%v", runID, unit.Position, err)
	}
}

// StopRun stores the final summary of the current run and applies retention.
// runErr is the error Run returned, if any.
func (t *Tracker) StopRun(ctx context.Context, summary *orchestrator.Summary, runErr error) error {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return nil
	}
	run := *t.current
	t.current = nil
	t.units = nil
	t.mu.Unlock()

	run.Status = RunStatus(summary, runErr)
	if summary != nil {
		run.Acquired = summary.Acquired
		run.Duplicate = summary.Duplicate
		run.Skipped = summary.Skipped
		run.Failed = summary.Failed
	}
	if err := t.store.FinishRun(ctx, run); err != nil {
		return err
	}
	log.Printf("INFO: history_run_finished run_id=%s status=%s", run.ID, run.Status)

	if t.retention > 0 {
		if n, err := t.store.DeleteOldRuns(ctx, t.retention); err != nil {
			log.Printf("WARN: history_cleanup_failed error=%v", err)
		} else if n > 0 {
			log.Printf("INFO: history_cleanup removed=%d", n)
		}
	}
	return nil
}

// RunStatus maps a run outcome to a stored status.
func RunStatus(summary *orchestrator.Summary, runErr error) string {
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return RunInterrupted
	case runErr != nil, summary == nil, !summary.OK():
		return RunPartial
	}
	return RunSucceeded
}
