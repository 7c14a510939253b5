// Package sessions persists live-session metadata and end-of-session
// summaries, and exposes the REST surface around them.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseclass/backend/internal/live"
	"github.com/pulseclass/backend/internal/models"
	"github.com/pulseclass/backend/pkg/queue"
)

// Repository handles live_sessions and session_summaries persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionCols = `id, course_id, host_id, title, status, scheduled_at, actual_start, actual_end, created_at, updated_at`

func scanSession(row pgx.Row) (*models.LiveSession, error) {
	var s models.LiveSession
	err := row.Scan(&s.ID, &s.CourseID, &s.HostID, &s.Title, &s.Status, &s.ScheduledAt, &s.ActualStart, &s.ActualEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a scheduled session. Used by the external scheduling action
// and dev tooling.
func (r *Repository) Create(ctx context.Context, courseID *uuid.UUID, hostID uuid.UUID, title string, scheduledAt time.Time) (*models.LiveSession, error) {
	q := `INSERT INTO live_sessions (id, course_id, host_id, title, status, scheduled_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'scheduled', $4)
		RETURNING ` + sessionCols
	return scanSession(r.pool.QueryRow(ctx, q, courseID, hostID, title, scheduledAt))
}

// GetByID returns a session row, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	q := `SELECT ` + sessionCols + ` FROM live_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// List returns sessions ordered by schedule, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string, limit int) ([]models.LiveSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := `SELECT ` + sessionCols + ` FROM live_sessions`
	args := []interface{}{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += fmt.Sprintf(` ORDER BY scheduled_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LiveSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateStatus persists a status transition with its timestamps.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, actualStart, actualEnd *time.Time) error {
	const q = `UPDATE live_sessions SET status = $2,
		actual_start = COALESCE($3, actual_start),
		actual_end = COALESCE($4, actual_end),
		updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, status, actualStart, actualEnd)
	return err
}

// SaveSummary upserts the end-of-session summary row.
func (r *Repository) SaveSummary(ctx context.Context, p queue.SessionSummaryPayload) error {
	const q = `INSERT INTO session_summaries
		(id, session_id, host_id, started_at, ended_at, peak_viewers, message_count, reaction_count, violation_count)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			peak_viewers = GREATEST(session_summaries.peak_viewers, EXCLUDED.peak_viewers),
			message_count = EXCLUDED.message_count,
			reaction_count = EXCLUDED.reaction_count,
			violation_count = EXCLUDED.violation_count`
	_, err := r.pool.Exec(ctx, q,
		p.SessionID, p.HostID, p.StartedAt, p.EndedAt,
		p.PeakViewers, p.MessageCount, p.ReactionCount, p.ViolationCount)
	return err
}

// GetSummary returns the summary for a session, or nil when absent.
func (r *Repository) GetSummary(ctx context.Context, sessionID uuid.UUID) (*models.SessionSummary, error) {
	const q = `SELECT id, session_id, host_id, started_at, ended_at, peak_viewers, message_count, reaction_count, violation_count, created_at
		FROM session_summaries WHERE session_id = $1`
	var s models.SessionSummary
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&s.ID, &s.SessionID, &s.HostID, &s.StartedAt, &s.EndedAt,
		&s.PeakViewers, &s.MessageCount, &s.ReactionCount, &s.ViolationCount, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Store adapts the repository to the live.Store interface.
type Store struct {
	repo *Repository
}

// NewStore wraps a repository for use by the registry.
func NewStore(repo *Repository) *Store {
	return &Store{repo: repo}
}

// GetSession implements live.Store.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*live.Session, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &live.Session{
		ID:          row.ID,
		HostID:      row.HostID,
		Title:       row.Title,
		Status:      live.Status(row.Status),
		ScheduledAt: row.ScheduledAt,
		ActualStart: row.ActualStart,
		ActualEnd:   row.ActualEnd,
	}, nil
}

// SaveStatus implements live.Store.
func (s *Store) SaveStatus(ctx context.Context, sess live.Session) error {
	return s.repo.UpdateStatus(ctx, sess.ID, string(sess.Status), sess.ActualStart, sess.ActualEnd)
}
