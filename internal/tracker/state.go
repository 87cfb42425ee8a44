package tracker

// PitState is the simulator's pit phase code, accepted verbatim from the
// shared region. Code 3 is unassigned in the simulator's enum; unknown
// codes leave the machine in its previous state.
type PitState int

const (
	PitOnTrack  PitState = 0
	PitInGarage PitState = 1
	PitComingIn PitState = 2
	PitPitting  PitState = 4
	PitLeaving  PitState = 5
)

func (s PitState) String() string {
	switch s {
	case PitOnTrack:
		return "on-track"
	case PitInGarage:
		return "in-garage"
	case PitComingIn:
		return "coming-in"
	case PitPitting:
		return "pitting"
	case PitLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// knownPitState reports whether a raw code maps to a pit phase.
func knownPitState(code int) bool {
	switch PitState(code) {
	case PitOnTrack, PitInGarage, PitComingIn, PitPitting, PitLeaving:
		return true
	}
	return false
}
