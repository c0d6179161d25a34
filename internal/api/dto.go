package api

import (
	"time"

	"github.com/starford/notesync/internal/models"
)

// StatusResponse describes the live state of the watcher and trigger.
type StatusResponse struct {
	Root        string             `json:"root" example:"/home/me/notes"`
	WatchedDirs int                `json:"watched_dirs" example:"12"`
	Pending     int64              `json:"pending" example:"3"`
	InFlight    bool               `json:"in_flight"`
	Fires       int64              `json:"fires" example:"7"`
	QuietWindow string             `json:"quiet_window" example:"30s"`
	LastFire    *time.Time         `json:"last_fire,omitempty"`
	LastSync    *models.SyncRecord `json:"last_sync,omitempty"`
}

// SyncListResponse wraps journaled sync attempts, newest first.
type SyncListResponse struct {
	Syncs []models.SyncRecord `json:"syncs"`
}

// MoveListResponse wraps journaled moves, newest first.
type MoveListResponse struct {
	Moves []models.Move `json:"moves"`
}

// TriggerResponse is returned by POST /sync.
type TriggerResponse struct {
	Status string `json:"status" example:"scheduled"`
}
