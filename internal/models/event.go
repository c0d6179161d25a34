// Package models defines the domain types shared across notesync.
package models

import (
	"path/filepath"
	"time"
)

// Kind is the type of a raw filesystem notification.
type Kind int

// Kinds of raw events. The set is closed.
const (
	Created Kind = iota + 1
	Modified
	Deleted
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RawEvent is a single notification observed on a watched directory.
type RawEvent struct {
	Kind       Kind
	Name       string    // base name of the changed entry
	Dir        string    // absolute path of the watched parent directory
	ObservedAt time.Time // when the event was read from the queue
}

// Path returns the absolute path of the changed entry.
func (e RawEvent) Path() string {
	return filepath.Join(e.Dir, e.Name)
}

// Move describes one correlated delete+create pair and the assets that
// followed the document.
type Move struct {
	Name    string    `json:"name"`
	Source  string    `json:"source"`
	Target  string    `json:"target"`
	Assets  []string  `json:"assets,omitempty"`
	Missing []string  `json:"missing,omitempty"`
	At      time.Time `json:"at"`
}

// Sync statuses.
const (
	SyncRunning = "running"
	SyncOK      = "ok"
	SyncFailed  = "failed"
)

// SyncRecord is one journaled sync attempt.
type SyncRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Changes    int       `json:"changes"`
	Status     string    `json:"status"`
	Step       string    `json:"step,omitempty"` // failing step, if any
	Error      string    `json:"error,omitempty"`
}
