package sessionlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseclass/backend/internal/models"
)

// Repository persists join/leave attendance for live sessions.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a sessionlog repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogJoin records that a user entered a session.
func (r *Repository) LogJoin(ctx context.Context, sessionID, userID uuid.UUID, role string) error {
	const q = `
		INSERT INTO user_session_logs (id, session_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, NOW())`
	_, err := r.db.Exec(ctx, q, uuid.New(), sessionID, userID, role)
	return err
}

// LogLeave closes the most recent open log entry for the user and
// computes total watch time in seconds.
func (r *Repository) LogLeave(ctx context.Context, sessionID, userID uuid.UUID) error {
	const q = `
		UPDATE user_session_logs
		SET left_at = NOW(),
		    watch_seconds = EXTRACT(EPOCH FROM (NOW() - joined_at))::INT
		WHERE id = (
			SELECT id FROM user_session_logs
			WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL
			ORDER BY joined_at DESC
			LIMIT 1
		)`
	_, err := r.db.Exec(ctx, q, sessionID, userID)
	return err
}

// CloseOpen closes every open log entry for a session. Used when a
// session ends while viewers are still connected.
func (r *Repository) CloseOpen(ctx context.Context, sessionID uuid.UUID) error {
	const q = `
		UPDATE user_session_logs
		SET left_at = NOW(),
		    watch_seconds = EXTRACT(EPOCH FROM (NOW() - joined_at))::INT
		WHERE session_id = $1 AND left_at IS NULL`
	_, err := r.db.Exec(ctx, q, sessionID)
	return err
}

// ListBySession returns all attendance rows for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.UserSessionLog, error) {
	const q = `
		SELECT id, session_id, user_id, role, joined_at, left_at, COALESCE(watch_seconds, 0)
		FROM user_session_logs
		WHERE session_id = $1
		ORDER BY joined_at DESC`
	rows, err := r.db.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.UserSessionLog
	for rows.Next() {
		var l models.UserSessionLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.UserID, &l.Role, &l.JoinedAt, &l.LeftAt, &l.WatchSeconds); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// AttendeeCount returns the number of distinct users that ever joined.
func (r *Repository) AttendeeCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(DISTINCT user_id) FROM user_session_logs WHERE session_id = $1`
	var n int
	err := r.db.QueryRow(ctx, q, sessionID).Scan(&n)
	return n, err
}

// TotalWatchTime sums watch seconds across all rows for a session,
// counting still-open rows up to now.
func (r *Repository) TotalWatchTime(ctx context.Context, sessionID uuid.UUID) (time.Duration, error) {
	const q = `
		SELECT COALESCE(SUM(
			COALESCE(watch_seconds, EXTRACT(EPOCH FROM (NOW() - joined_at))::INT)
		), 0)
		FROM user_session_logs
		WHERE session_id = $1`
	var secs int64
	if err := r.db.QueryRow(ctx, q, sessionID).Scan(&secs); err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
