package history

import (
	"context"
	"errors"
	"testing"

	"github.com/AJMSD/raga/download/catalog"
	"github.com/AJMSD/raga/download/orchestrator"
	"github.com/AJMSD/raga/download/reference"
)

func TestTracker_RecordsUnitsFromEvents(t *testing.T) {
	store := openTestStore(t)
	tracker := NewTracker(store, 0)
	ctx := context.Background()

	run, err := tracker.StartRun(ctx, Run{Destination: "/music", Mode: "albums"})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if cur := tracker.CurrentRun(); cur == nil || cur.ID != run.ID {
		t.Fatalf("CurrentRun() = %+v, want run %s", cur, run.ID)
	}

	albumRef := reference.Reference{Kind: reference.KindAlbum, Form: reference.FormName, Value: "Blue", Raw: "Blue"}
	album := &catalog.Album{AlbumID: "al1", Name: "Blue"}
	missing := reference.Reference{Kind: reference.KindAlbum, Form: reference.FormName, Value: "Gone", Raw: "Gone"}

	events := []orchestrator.Event{
		{Kind: orchestrator.EventUnitStart, Index: 0, Ref: albumRef},
		{Kind: orchestrator.EventUnitResolved, Index: 0, Ref: albumRef, Entity: album},
		{Kind: orchestrator.EventTrackState, Index: 0, State: orchestrator.StateAcquiring},
		{Kind: orchestrator.EventTrackState, Index: 0, State: orchestrator.StateAccepted},
		{Kind: orchestrator.EventTrackState, Index: 0, State: orchestrator.StateDuplicate},
		{Kind: orchestrator.EventTrackState, Index: 0, State: orchestrator.StateFailed},
		{Kind: orchestrator.EventUnitDone, Index: 0, Ref: albumRef, Entity: album},
		{Kind: orchestrator.EventUnitStart, Index: 1, Ref: missing},
		{Kind: orchestrator.EventUnitSkipped, Index: 1, Ref: missing, Err: errors.New("no match")},
	}
	for _, e := range events {
		tracker.Observe(e)
	}

	summary := &orchestrator.Summary{Acquired: 1, Duplicate: 1, Skipped: 1, Failed: 1}
	if err := tracker.StopRun(ctx, summary, nil); err != nil {
		t.Fatalf("StopRun() error = %v", err)
	}
	if tracker.CurrentRun() != nil {
		t.Error("CurrentRun() != nil after StopRun()")
	}

	units, err := store.Units(ctx, run.ID)
	if err != nil {
		t.Fatalf("Units() error = %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("Units() returned %d, want 2", len(units))
	}
	blue := units[0]
	if blue.Status != UnitPartial || blue.Accepted != 1 || blue.Duplicate != 1 || blue.Failed != 1 || blue.EntityID != "al1" {
		t.Errorf("unit 1 = %+v", blue)
	}
	if units[1].Status != UnitSkipped || units[1].Message != "no match" {
		t.Errorf("unit 2 = %+v", units[1])
	}

	runs, err := store.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if runs[0].Status != RunPartial || runs[0].Duplicate != 1 {
		t.Errorf("run = %+v, want partial with counts", runs[0])
	}
}

func TestTracker_IgnoresEventsWithoutRun(t *testing.T) {
	store := openTestStore(t)
	tracker := NewTracker(store, 0)
	tracker.Observe(orchestrator.Event{Kind: orchestrator.EventUnitStart})
	if err := tracker.StopRun(context.Background(), nil, nil); err != nil {
		t.Errorf("StopRun() without a run error = %v", err)
	}
}

func TestTracker_Retention(t *testing.T) {
	store := openTestStore(t)
	tracker := NewTracker(store, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.StartRun(ctx, Run{Destination: "/music", Mode: "songs"}); err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		if err := tracker.StopRun(ctx, &orchestrator.Summary{}, nil); err != nil {
			t.Fatalf("StopRun() error = %v", err)
		}
	}
	runs, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("kept %d runs, want 1", len(runs))
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary *orchestrator.Summary
		err     error
		want    string
	}{
		{"clean", &orchestrator.Summary{Acquired: 2}, nil, RunSucceeded},
		{"failed track", &orchestrator.Summary{Failed: 1}, nil, RunPartial},
		{"skipped", &orchestrator.Summary{Skipped: 1}, nil, RunPartial},
		{"cancelled", &orchestrator.Summary{}, context.Canceled, RunInterrupted},
		{"no summary", nil, nil, RunPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunStatus(tt.summary, tt.err); got != tt.want {
				t.Errorf("RunStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
