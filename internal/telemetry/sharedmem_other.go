//go:build !windows

package telemetry

import "context"

// NewSharedMemoryReader is only functional on Windows, where the simulator
// publishes its named mapping. Elsewhere the tracker runs against a
// file-backed replay region instead.
func NewSharedMemoryReader() Reader {
	return unavailableReader{}
}

type unavailableReader struct{}

func (unavailableReader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
