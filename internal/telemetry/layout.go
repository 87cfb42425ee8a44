// Package telemetry reads the simulator's shared-memory telemetry region and
// exposes point-in-time snapshots of the player vehicle and scoring state.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MappingName is the platform tag of the simulator's telemetry region.
const MappingName = "$StintFlowSMMP_Telemetry$"

// MaxVehicles is the fixed slot count of the shared region.
const MaxVehicles = 104

// Wheel is one wheel slot in the mapped region.
type Wheel struct {
	Wear     float64
	Flat     uint8
	Detached uint8
	_        [6]byte
}

// VehicleTelemetry is the per-vehicle telemetry slot.
type VehicleTelemetry struct {
	Wheels [4]Wheel
}

// ScoringInfo carries the session clock.
type ScoringInfo struct {
	CurrentET float64
	EndET     float64
}

// VehScoring is the per-vehicle scoring slot.
type VehScoring struct {
	DriverName    [32]byte
	PitState      uint8
	InGarageStall uint8
	NumPenalties  uint16
	_             [4]byte
}

// Layout is the fixed little-endian structure of the mapped region.
type Layout struct {
	Version          uint32
	ActiveVehicles   int32
	PlayerVehicleIdx int32
	_                [4]byte
	Scoring          ScoringInfo
	Telem            [MaxVehicles]VehicleTelemetry
	VehScoring       [MaxVehicles]VehScoring
}

// LayoutSize is the byte length of the mapped region.
var LayoutSize = binary.Size(Layout{})

// WheelState is the decoded state of one wheel.
type WheelState struct {
	Wear     float64
	Flat     bool
	Detached bool
}

// Snapshot is a decoded, player-focused view of the region. It is a copy; the
// mapping is released before Snapshot is returned.
type Snapshot struct {
	Driver         string
	PitState       int
	InGarageStall  bool
	Penalties      int
	CurrentET      float64
	EndET          float64
	Wheels         [4]WheelState
	ActiveVehicles int
}

// DecodeLayout interprets raw mapped bytes as a Layout.
func DecodeLayout(b []byte) (*Layout, error) {
	if len(b) < LayoutSize {
		return nil, fmt.Errorf("telemetry region too small: %d bytes, want %d", len(b), LayoutSize)
	}
	var l Layout
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// SnapshotFromLayout extracts the player vehicle view.
func SnapshotFromLayout(l *Layout) (*Snapshot, error) {
	idx := int(l.PlayerVehicleIdx)
	if idx < 0 || idx >= MaxVehicles || idx >= int(l.ActiveVehicles) {
		return nil, fmt.Errorf("player vehicle index %d out of range (active %d)", idx, l.ActiveVehicles)
	}
	s := &Snapshot{
		PitState:       int(l.VehScoring[idx].PitState),
		InGarageStall:  l.VehScoring[idx].InGarageStall != 0,
		Penalties:      int(l.VehScoring[idx].NumPenalties),
		CurrentET:      l.Scoring.CurrentET,
		EndET:          l.Scoring.EndET,
		ActiveVehicles: int(l.ActiveVehicles),
		Driver:         cstring(l.VehScoring[idx].DriverName[:]),
	}
	for i, w := range l.Telem[idx].Wheels {
		s.Wheels[i] = WheelState{Wear: w.Wear, Flat: w.Flat != 0, Detached: w.Detached != 0}
	}
	return s, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
