package telemetry

import (
	"context"
	"errors"
	"os"
)

// ErrUnavailable is returned when the telemetry mapping cannot be acquired,
// typically because the simulator is not running. Callers skip the tick and
// retry on the next poll.
var ErrUnavailable = errors.New("telemetry mapping unavailable")

// Reader yields the simulator's current state. Each call re-acquires the
// mapping and releases it before returning; snapshots are never cached.
type Reader interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// FileReader reads the telemetry layout from a regular file. It backs replay
// sessions and tests, and is the only reader available off Windows.
type FileReader struct {
	Path string
}

func (r *FileReader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	l, err := DecodeLayout(b)
	if err != nil {
		return nil, err
	}
	return SnapshotFromLayout(l)
}
