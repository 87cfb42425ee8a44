//go:build windows

package telemetry

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SharedMemoryReader maps the simulator's named shared-memory region. The
// mapping is opened and released inside each Snapshot call so a crashed or
// restarted simulator never leaves a stale view behind.
type SharedMemoryReader struct {
	Name string
}

// NewSharedMemoryReader returns a reader for the default mapping tag.
func NewSharedMemoryReader() Reader {
	return &SharedMemoryReader{Name: MappingName}
}

func (r *SharedMemoryReader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	namePtr, err := windows.UTF16PtrFromString(r.Name)
	if err != nil {
		return nil, err
	}
	handle, err := windows.OpenFileMapping(windows.FILE_MAP_READ, false, namePtr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer windows.CloseHandle(handle)

	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ, 0, 0, uintptr(LayoutSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer windows.UnmapViewOfFile(addr)

	view := unsafe.Slice((*byte)(unsafe.Pointer(addr)), LayoutSize)
	// Copy out before the view is unmapped; the simulator rewrites the
	// region continuously.
	buf := make([]byte, LayoutSize)
	copy(buf, view)

	l, err := DecodeLayout(buf)
	if err != nil {
		return nil, err
	}
	return SnapshotFromLayout(l)
}
