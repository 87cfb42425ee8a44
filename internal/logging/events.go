package logging

import (
	"fmt"
	"io"
)

// EventKind is the severity tag of a tracker protocol line.
type EventKind string

const (
	KindEvent   EventKind = "event"
	KindInfo    EventKind = "info"
	KindWarning EventKind = "warning"
	KindError   EventKind = "error"
)

// Tracker protocol events consumed by the UI.
const (
	EventStintCreated         = "stint_created"
	EventReturnToGarage       = "return_to_garage"
	EventPlayerInGarage       = "player_in_garage"
	EventRegistrationConflict = "registration_conflict"
)

const component = "stint_tracker"

// EmitLine writes one structured protocol line, `__<kind>__:stint_tracker:<event>`.
// The UI matches these lines verbatim, so the format must not change.
func EmitLine(w io.Writer, kind EventKind, event string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "__%s__:%s:%s\n", kind, component, event)
}
