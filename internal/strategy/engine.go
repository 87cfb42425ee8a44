package strategy

import (
	"github.com/stintworks/stintflow/internal/clock"
	"github.com/stintworks/stintflow/internal/tires"
)

// tiresPerSet is the decrement applied to the medium inventory when a
// pending row is projected to take a full fresh set.
const tiresPerSet = 4

// Project turns a session's completed stints into the full strategy table:
// completed rows with durations, inventory and run labels, the mean stint
// estimate, and a pending tail generated back to the start of the race.
func Project(in Inputs) Projection {
	p := Projection{}
	raceStart, _ := clock.ParseHMSOrZero(in.RaceLength)

	// Completed rows. Descending bucket order is chronological on a
	// remaining-time clock, so the previous row's pit time is the larger one.
	left := in.TotalTires
	prev := raceStart
	for _, st := range in.Completed {
		cur, _ := clock.ParseHMSOrZero(st.PitEndTime)
		changed, mediums := countChanges(&st.Outgoing)
		left -= mediums
		p.Rows = append(p.Rows, TableRow{
			Driver:           st.Driver,
			Status:           StatusCompleted,
			PitEndTime:       st.PitEndTime,
			TiresChanged:     changed,
			TiresLeft:        left,
			StintTimeSeconds: clock.WallDistance(prev, cur),
		})
		p.Tires = append(p.Tires, st.Outgoing)
		p.Meta = append(p.Meta, RowMeta{ID: st.ID, Excluded: st.Excluded})
		prev = cur
	}
	classifyRows(p.Rows, p.Tires)

	p.MeanSeconds = meanDuration(p.Rows, p.Meta)
	mean := p.MeanSeconds
	if in.MeanOverride > 0 {
		mean = in.MeanOverride
	}
	if len(p.Rows) == 0 || mean <= 0 {
		return p
	}

	// Pending tail. The tire-change toggle starts opposite the last observed
	// change: a fresh set just fitted runs its first projected stint free.
	toggle := tiresPerSet
	if p.Rows[len(p.Rows)-1].TiresChanged > 0 {
		toggle = 0
	}
	cur := prev
	for cur > 0 {
		if clock.CrossesMidnight(cur, mean) {
			if toggle == tiresPerSet {
				left -= tiresPerSet
			}
			p.appendPending("00:00:00", toggle, left, cur)
			break
		}
		cur -= mean
		if toggle == tiresPerSet {
			left -= tiresPerSet
		}
		p.appendPending(clock.FormatHMS(cur), toggle, left, mean)
		toggle = tiresPerSet - toggle
	}
	return p
}

func (p *Projection) appendPending(pit string, changed, left, stintTime int) {
	p.Rows = append(p.Rows, TableRow{
		StintType:        StintTypeName(1),
		Status:           StatusPending,
		PitEndTime:       pit,
		TiresChanged:     changed,
		TiresLeft:        left,
		StintTimeSeconds: stintTime,
	})
	p.Tires = append(p.Tires, pendingSnapshot(changed))
	p.Meta = append(p.Meta, RowMeta{})
}

// pendingSnapshot synthesizes the tire state of a projected stop. Inventory
// tracks mediums, so projected changes are full medium sets.
func pendingSnapshot(changed int) tires.Snapshot {
	var s tires.Snapshot
	if changed == 0 {
		return s
	}
	for _, pos := range tires.Positions {
		s.Set(pos, tires.WheelRecord{Compound: tires.Medium, Wear: 1, Changed: true})
	}
	return s
}

// countChanges returns the number of wheels freshly fitted at a stop and the
// medium subset of those. Only mediums draw down the inventory; wet sets are
// effectively unlimited under endurance rules.
func countChanges(s *tires.Snapshot) (changed, mediums int) {
	for _, pos := range tires.Positions {
		w := s.At(pos)
		if !w.Changed {
			continue
		}
		changed++
		if w.Compound == tires.Medium {
			mediums++
		}
	}
	return changed, mediums
}

// meanDuration is the integer arithmetic mean over non-excluded completed
// rows, zero when none exist.
func meanDuration(rows []TableRow, meta []RowMeta) int {
	sum, n := 0, 0
	for i, r := range rows {
		if r.Status != StatusCompleted || meta[i].Excluded {
			continue
		}
		sum += r.StintTimeSeconds
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// classifyRows labels contiguous tire-set runs over the completed rows. A
// run covers the stints driven on one set and ends at the stop that replaces
// it; the run's first row carries the label, the rest stay blank.
func classifyRows(rows []TableRow, snaps []tires.Snapshot) {
	start := 0
	for i := range rows {
		rows[i].StintType = ""
		if snaps[i].ChangedCount() > 0 {
			rows[start].StintType = StintTypeName(i - start + 1)
			start = i + 1
		}
	}
	if start < len(rows) {
		rows[start].StintType = StintTypeName(len(rows) - start)
	}
}
