// Package logging owns the per-session StintFlow log file: header, archival of
// the previous session's log, and retention-based purging of old archives.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// FileName is the active log file inside the StintFlow directory.
	FileName = "stintflow.log"

	archivePattern  = "stintflow-*.log"
	archiveTimeSpec = "20060102-150405"
	headerTimeSpec  = "2006-01-02 15:04:05"
)

// DefaultDir returns ~/StintFlow.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "StintFlow"), nil
}

// SessionLog is the open log file of the current session.
type SessionLog struct {
	Dir  string
	Path string

	f *os.File
}

// Open rotates any previous session's log into a timestamped archive, purges
// archives past retention, and opens a fresh log with the session header.
func Open(dir string, retentionDays int, now time.Time) (*SessionLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	if err := archiveExisting(dir, path); err != nil {
		return nil, err
	}
	if _, err := Purge(dir, retentionDays, now); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "=== StintFlow session started: %s ===\n", now.Format(headerTimeSpec)); err != nil {
		f.Close()
		return nil, err
	}
	return &SessionLog{Dir: dir, Path: path, f: f}, nil
}

func archiveExisting(dir, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	stamp := info.ModTime().Format(archiveTimeSpec)
	dest := filepath.Join(dir, fmt.Sprintf("stintflow-%s.log", stamp))
	// A second rotation within the same second overwrites the archive, which
	// is acceptable: the content is the later of the two sessions.
	return os.Rename(path, dest)
}

func (l *SessionLog) Write(p []byte) (int, error) {
	return l.f.Write(p)
}

func (l *SessionLog) Close() error {
	return l.f.Close()
}

// Purge removes archived session logs whose embedded timestamp is older than
// retentionDays. It returns the number of archives removed.
func Purge(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be >= 1")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match(archivePattern, e.Name())
		if err != nil || !ok {
			continue
		}
		stamp := e.Name()[len("stintflow-") : len(e.Name())-len(".log")]
		at, err := time.ParseInLocation(archiveTimeSpec, stamp, now.Location())
		if err != nil {
			// Not one of ours; leave it alone.
			continue
		}
		if at.Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
