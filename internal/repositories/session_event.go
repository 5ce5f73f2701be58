package repositories

import (
	"context"

	"github.com/jackc/pgtype"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/db"
)

type sessionEvent struct {
	conn db.Storage
}

// NewSessionEvent returns a postgres backed session audit trail repository
func NewSessionEvent(conn db.Storage) ports.SessionEventRepository {
	return &sessionEvent{conn: conn}
}

func (r *sessionEvent) Save(ctx context.Context, ev *domain.SessionEvent) error {
	sql := `INSERT INTO session_events (id, session_id, status, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.conn.Pgx.Exec(ctx, sql, ev.ID, ev.SessionID, string(ev.Status), jsonb(ev.Payload), ev.CreatedAt)
	return storeError(err)
}

func (r *sessionEvent) GetBySession(ctx context.Context, sessionID string) ([]domain.SessionEvent, error) {
	sql := `SELECT id, session_id, status, payload, created_at FROM session_events
		WHERE session_id = $1 ORDER BY created_at`
	rows, err := r.conn.Pgx.Query(ctx, sql, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	events := make([]domain.SessionEvent, 0)
	for rows.Next() {
		var (
			ev      domain.SessionEvent
			status  string
			payload pgtype.JSONB
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &status, &payload, &ev.CreatedAt); err != nil {
			return nil, storeError(err)
		}
		ev.Status = domain.SessionStatus(status)
		ev.Payload = jsonbBytes(payload)
		events = append(events, ev)
	}
	return events, storeError(rows.Err())
}
