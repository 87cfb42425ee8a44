package strategy

import (
	"context"
	"fmt"

	"github.com/stintworks/stintflow/internal/tires"
)

// TableModel owns the strategy table: the completed stints it was loaded
// with, the current projection over them, and the edit operations. Every
// edit mutates the completed inputs and re-projects, so the row invariants
// hold after each operation. The model is single-threaded by design; its
// owner serializes access.
type TableModel struct {
	persist    Persister
	completed  []CompletedStint
	totalTires int
	raceLength string
	meanEdit   int
	proj       Projection
}

// NewTableModel builds a model and runs the initial projection.
func NewTableModel(p Persister, in Inputs) *TableModel {
	m := &TableModel{
		persist:    p,
		completed:  append([]CompletedStint(nil), in.Completed...),
		totalTires: in.TotalTires,
		raceLength: in.RaceLength,
		meanEdit:   in.MeanOverride,
	}
	m.reproject()
	return m
}

func (m *TableModel) reproject() {
	m.proj = Project(Inputs{
		Completed:    m.completed,
		TotalTires:   m.totalTires,
		RaceLength:   m.raceLength,
		MeanOverride: m.meanEdit,
	})
}

// Projection returns the current projection. The slices are owned by the
// model and invalidated by the next edit.
func (m *TableModel) Projection() Projection { return m.proj }

// RowCount returns the number of rows, completed plus pending.
func (m *TableModel) RowCount() int { return len(m.proj.Rows) }

// Row returns row i.
func (m *TableModel) Row(i int) TableRow { return m.proj.Rows[i] }

// TiresAt returns the tire snapshot for row i.
func (m *TableModel) TiresAt(i int) tires.Snapshot { return m.proj.Tires[i] }

// MetaAt returns the bookkeeping record for row i.
func (m *TableModel) MetaAt(i int) RowMeta { return m.proj.Meta[i] }

// Excluded reports whether row i is excluded from the mean. Renderers tint
// the whole row when set.
func (m *TableModel) Excluded(i int) bool { return m.proj.Meta[i].Excluded }

// MeanSeconds returns the mean driving the pending tail: the user's edit if
// one is active, otherwise the computed arithmetic mean.
func (m *TableModel) MeanSeconds() int {
	if m.meanEdit > 0 {
		return m.meanEdit
	}
	return m.proj.MeanSeconds
}

// SetMean overrides the mean stint time and regenerates the pending tail.
// Completed rows keep their pit times. A non-positive value reverts to the
// computed mean.
func (m *TableModel) SetMean(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	m.meanEdit = seconds
	m.reproject()
}

func (m *TableModel) completedIndex(row int) (int, error) {
	if row < 0 || row >= len(m.proj.Rows) {
		return 0, fmt.Errorf("row %d out of range", row)
	}
	if m.proj.Rows[row].Status != StatusCompleted {
		return 0, fmt.Errorf("row %d is pending; only completed rows can be edited", row)
	}
	return row, nil
}

// SetStintType relabels the tire-set run whose first row is row. The run
// grows or shrinks to the new length and the closing tire change moves to
// its new last row; classification then reruns over the whole table. A
// change row left behind by a shrink keeps its change and starts a run of
// its own.
func (m *TableModel) SetStintType(row int, label string) error {
	i, err := m.completedIndex(row)
	if err != nil {
		return err
	}
	k, err := RunLength(label)
	if err != nil {
		return err
	}
	start := runStart(m.proj, i)
	end := start + k - 1
	if end >= len(m.completed) {
		return fmt.Errorf("%s run starting at row %d would extend past the last completed stint", label, start)
	}
	for j := start; j < end; j++ {
		clearChanges(&m.completed[j].Outgoing)
	}
	markFullChange(&m.completed[end].Outgoing)
	m.reproject()
	return nil
}

// SetTires replaces row's tire snapshot with a user edit. The row's change
// count, the inventory from row zero down, the mean and the pending tail
// are all recomputed.
func (m *TableModel) SetTires(row int, snap tires.Snapshot) error {
	i, err := m.completedIndex(row)
	if err != nil {
		return err
	}
	m.completed[i].Outgoing = snap
	m.reproject()
	return nil
}

// ToggleExcluded flips row's exclusion flag, persists it, and recomputes
// the mean and pending tail. Completed pit times are untouched; the row
// stays in the table.
func (m *TableModel) ToggleExcluded(ctx context.Context, row int) error {
	i, err := m.completedIndex(row)
	if err != nil {
		return err
	}
	next := !m.completed[i].Excluded
	if err := m.persist.SetStintExcluded(ctx, m.completed[i].ID, next); err != nil {
		return err
	}
	m.completed[i].Excluded = next
	m.reproject()
	return nil
}

// DeleteRow removes a completed stint from the table and the store, then
// recomputes the projection over the remainder.
func (m *TableModel) DeleteRow(ctx context.Context, row int) error {
	i, err := m.completedIndex(row)
	if err != nil {
		return err
	}
	if err := m.persist.DeleteStint(ctx, m.completed[i].ID); err != nil {
		return err
	}
	m.completed = append(m.completed[:i], m.completed[i+1:]...)
	m.reproject()
	return nil
}

// runStart walks back from row i to the first row of its tire-set run.
func runStart(p Projection, i int) int {
	s := i
	for s > 0 && p.Tires[s-1].ChangedCount() == 0 {
		s--
	}
	return s
}

func clearChanges(s *tires.Snapshot) {
	for _, pos := range tires.Positions {
		w := s.At(pos)
		w.Changed = false
		s.Set(pos, w)
	}
}

// markFullChange records a full fresh set at a stop. Unknown compounds
// become medium so the inventory rule sees the set.
func markFullChange(s *tires.Snapshot) {
	for _, pos := range tires.Positions {
		w := s.At(pos)
		w.Changed = true
		w.Wear = 1
		if !w.Compound.Known() {
			w.Compound = tires.Medium
		}
		s.Set(pos, w)
	}
}
