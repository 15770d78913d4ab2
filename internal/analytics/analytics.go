// Package analytics records playback and access events. Writes are
// best-effort from the caller's point of view: a failed insert must never
// fail the operation that triggered it.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"cinevault/internal/storage"
)

// ErrNotFound is returned when completing an event that does not exist or
// was already completed.
var ErrNotFound = errors.New("event not found")

// Event is one playback or access attempt. Rows are append-only; the only
// permitted mutation is setting CompletedAt exactly once.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"eventType"`
	SubjectID       string     `json:"subjectId"`
	RequesterIP     string     `json:"-"`
	RequesterAgent  string     `json:"-"`
	Source          string     `json:"source"`
	DurationWatched float64    `json:"durationWatched"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Recorder persists events to PostgreSQL.
type Recorder struct{ db *storage.DB }

// NewRecorder constructs an event recorder.
func NewRecorder(db *storage.DB) *Recorder { return &Recorder{db: db} }

// Record inserts a new event and fills in its ID and CreatedAt.
func (r *Recorder) Record(ctx context.Context, ev *Event) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	ev.ID = id
	ev.CreatedAt = time.Now().UTC()

	const q = `
INSERT INTO stream_events (id, event_type, subject_id, requester_ip, requester_agent, source, duration_watched, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.db.Pool.Exec(ctx, q, ev.ID, ev.Type, ev.SubjectID, ev.RequesterIP,
		ev.RequesterAgent, ev.Source, ev.DurationWatched, ev.CreatedAt)
	return err
}

// Complete stamps completed_at and the final watched duration on an event.
// The WHERE guard keeps the row append-only: a second completion is a no-op
// rejected with ErrNotFound.
func (r *Recorder) Complete(ctx context.Context, id uuid.UUID, durationWatched float64) error {
	const q = `
UPDATE stream_events
SET completed_at = now(), duration_watched = $2
WHERE id = $1 AND completed_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id, durationWatched)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
