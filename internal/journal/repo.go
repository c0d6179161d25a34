package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
)

// Store is the journal interface consumed by the API and the sync recorder.
type Store interface {
	BeginSync(changes int, at time.Time) (int64, error)
	FinishSync(id int64, at time.Time, step string, syncErr error) error
	RecordMove(m models.Move) error
	RecentSyncs(limit int) ([]models.SyncRecord, error)
	RecentMoves(limit int) ([]models.Move, error)
	LastSync() (models.SyncRecord, error)
}

var _ Store = (*DB)(nil)

const defaultLimit = 50

// BeginSync inserts a running sync and returns its id.
func (db *DB) BeginSync(changes int, at time.Time) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO syncs (started_at, changes, status) VALUES (?, ?, ?)`,
		at.UTC(), changes, models.SyncRunning)
	if err != nil {
		return 0, fmt.Errorf("journal: begin sync: %w", err)
	}
	return res.LastInsertId()
}

// FinishSync marks a sync as ok, or failed at step when syncErr is non-nil.
func (db *DB) FinishSync(id int64, at time.Time, step string, syncErr error) error {
	status, msg := models.SyncOK, ""
	if syncErr != nil {
		status, msg = models.SyncFailed, syncErr.Error()
	}
	res, err := db.conn.Exec(
		`UPDATE syncs SET finished_at = ?, status = ?, step = ?, error = ? WHERE id = ?`,
		at.UTC(), status, step, msg, id)
	if err != nil {
		return fmt.Errorf("journal: finish sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: finish sync %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// RecordMove stores a detected move.
func (db *DB) RecordMove(m models.Move) error {
	assets, _ := json.Marshal(nonNil(m.Assets))
	missing, _ := json.Marshal(nonNil(m.Missing))
	_, err := db.conn.Exec(
		`INSERT INTO moves (name, source, target, assets, missing, at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.Name, m.Source, m.Target, string(assets), string(missing), m.At.UTC())
	if err != nil {
		return fmt.Errorf("journal: record move: %w", err)
	}
	return nil
}

// RecentSyncs returns the newest sync records first.
func (db *DB) RecentSyncs(limit int) ([]models.SyncRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, changes, status, step, error
		FROM syncs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent syncs: %w", err)
	}
	defer rows.Close()

	out := []models.SyncRecord{}
	for rows.Next() {
		rec, err := scanSync(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastSync returns the most recent sync or apperr.ErrNotFound.
func (db *DB) LastSync() (models.SyncRecord, error) {
	row := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, changes, status, step, error
		FROM syncs ORDER BY id DESC LIMIT 1`)
	rec, err := scanSync(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncRecord{}, apperr.ErrNotFound
	}
	return rec, err
}

// RecentMoves returns the newest moves first.
func (db *DB) RecentMoves(limit int) ([]models.Move, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.Query(`
		SELECT name, source, target, assets, missing, at
		FROM moves ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent moves: %w", err)
	}
	defer rows.Close()

	out := []models.Move{}
	for rows.Next() {
		var (
			m               models.Move
			assets, missing string
		)
		if err := rows.Scan(&m.Name, &m.Source, &m.Target, &assets, &missing, &m.At); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(assets), &m.Assets)
		_ = json.Unmarshal([]byte(missing), &m.Missing)
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSync(s scanner) (models.SyncRecord, error) {
	var (
		rec      models.SyncRecord
		finished sql.NullTime
	)
	if err := s.Scan(&rec.ID, &rec.StartedAt, &finished, &rec.Changes, &rec.Status, &rec.Step, &rec.Error); err != nil {
		return models.SyncRecord{}, err
	}
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	return rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
