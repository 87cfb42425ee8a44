// Package strategy projects a session's completed stints into a full race
// timeline: observed rows, an arithmetic-mean stint estimate, and pending
// rows generated back to the start of the race. The engine is pure; all
// persistence goes through the Persister interface.
package strategy

import (
	"context"

	"github.com/stintworks/stintflow/internal/tires"
)

// Status marks a row as observed history or forward projection.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
)

// TableRow is one line of the strategy table.
type TableRow struct {
	StintType        string
	Driver           string
	Status           Status
	PitEndTime       string
	TiresChanged     int
	TiresLeft        int
	StintTimeSeconds int
}

// RowMeta carries per-row bookkeeping that is not rendered as a cell.
type RowMeta struct {
	ID       string
	Excluded bool
}

// CompletedStint is an observed stint as loaded from the store, in
// descending pit-end-time-bucket order. Outgoing describes the wheels after
// the pit stop that ended the stint; its Changed flags drive run
// classification and tire inventory.
type CompletedStint struct {
	ID         string
	Driver     string
	PitEndTime string
	Bucket     string
	Excluded   bool
	Outgoing   tires.Snapshot
}

// Inputs is everything Project needs. Completed must be sorted descending
// by bucket, which for a remaining-time clock is chronological order.
type Inputs struct {
	Completed  []CompletedStint
	TotalTires int
	// RaceLength is the race duration as an HH:MM:SS time-of-day; it is
	// the remaining time shown at the start of the race.
	RaceLength string
	// MeanOverride, when positive, replaces the computed mean for pending
	// generation. Used when the user saves an edited mean.
	MeanOverride int
}

// Projection is the engine's output: three parallel sequences plus the mean
// that generated the pending tail.
type Projection struct {
	Rows        []TableRow
	Tires       []tires.Snapshot
	Meta        []RowMeta
	MeanSeconds int
}

// Persister applies the table edits that outlive the in-memory model.
type Persister interface {
	SetStintExcluded(ctx context.Context, id string, excluded bool) error
	DeleteStint(ctx context.Context, id string) error
}
