// Package tires models per-wheel tire state: compounds, wear, and the
// change-detection rule used to decide whether a stint fitted fresh rubber.
package tires

import (
	"fmt"
)

// Position identifies one of the four wheel positions.
type Position string

const (
	FrontLeft  Position = "front_left"
	FrontRight Position = "front_right"
	RearLeft   Position = "rear_left"
	RearRight  Position = "rear_right"
)

// Positions lists all wheel positions in telemetry slot order.
var Positions = [4]Position{FrontLeft, FrontRight, RearLeft, RearRight}

// ParsePosition converts a string to a Position.
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case FrontLeft, FrontRight, RearLeft, RearRight:
		return Position(s), nil
	}
	return "", fmt.Errorf("unknown wheel position: %q", s)
}

// Side reports which side of the car a position is on, "left" or "right".
func (p Position) Side() string {
	switch p {
	case FrontLeft, RearLeft:
		return "left"
	default:
		return "right"
	}
}

// Compound is a tire compound as reported by the garage UI.
type Compound string

const (
	Medium  Compound = "Medium"
	Wet     Compound = "Wet"
	Unknown Compound = "Unknown"
)

// ParseCompound converts a string to a Compound.
func ParseCompound(s string) (Compound, error) {
	switch Compound(s) {
	case Medium, Wet, Unknown:
		return Compound(s), nil
	}
	return "", fmt.Errorf("unknown tire compound: %q", s)
}

// compoundFromCode maps the garage UI's numeric compound codes.
func compoundFromCode(code int) Compound {
	switch code {
	case 0:
		return Medium
	case 1:
		return Wet
	default:
		return Unknown
	}
}

// Known reports whether the compound carries real information. Unknown
// compounds never overwrite a stored value.
func (c Compound) Known() bool {
	return c == Medium || c == Wet
}

// changeThreshold is the wear level at or above which a wheel is considered
// freshly fitted. Wear is remaining tread in [0,1]; a brand-new tire reads
// 1.0 less sensor noise.
const changeThreshold = 0.99

// Changed reports whether a wheel's wear reading indicates a fresh tire.
func Changed(wear float64) bool {
	return wear >= changeThreshold
}

// WheelRecord is the captured state of one wheel at a pit event.
type WheelRecord struct {
	Compound Compound
	Wear     float64
	Changed  bool
	Flat     bool
	Detached bool
}

// Snapshot is the state of all four wheels at a pit event.
type Snapshot struct {
	FrontLeft  WheelRecord
	FrontRight WheelRecord
	RearLeft   WheelRecord
	RearRight  WheelRecord
}

// At returns the record for a position.
func (s *Snapshot) At(p Position) WheelRecord {
	switch p {
	case FrontLeft:
		return s.FrontLeft
	case FrontRight:
		return s.FrontRight
	case RearLeft:
		return s.RearLeft
	default:
		return s.RearRight
	}
}

// Set replaces the record for a position.
func (s *Snapshot) Set(p Position, w WheelRecord) {
	switch p {
	case FrontLeft:
		s.FrontLeft = w
	case FrontRight:
		s.FrontRight = w
	case RearLeft:
		s.RearLeft = w
	default:
		s.RearRight = w
	}
}

// ChangedCount returns how many wheels in the snapshot were freshly fitted.
func (s *Snapshot) ChangedCount() int {
	n := 0
	for _, p := range Positions {
		if s.At(p).Changed {
			n++
		}
	}
	return n
}

// FromWears builds a snapshot from per-wheel wear readings in telemetry slot
// order, applying the change threshold to each. Compounds start Unknown; the
// extractor fills them in when the garage UI answers.
func FromWears(wears [4]float64, flats, detached [4]bool) Snapshot {
	var s Snapshot
	for i, p := range Positions {
		s.Set(p, WheelRecord{
			Compound: Unknown,
			Wear:     wears[i],
			Changed:  Changed(wears[i]),
			Flat:     flats[i],
			Detached: detached[i],
		})
	}
	return s
}
