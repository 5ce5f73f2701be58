package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/db"
)

const sessionColumns = `session_id, wallet_address, status, verification_config, qr_code_data, universal_link,
	verification_data, tx_hash, expires_at, completed_at, created_at, updated_at`

type session struct {
	conn db.Storage
}

// NewSession returns a postgres backed verification session repository
func NewSession(conn db.Storage) ports.SessionRepository {
	return &session{conn: conn}
}

// Save inserts a new session
func (s *session) Save(ctx context.Context, vs *domain.VerificationSession) error {
	vdata, err := marshalVerificationData(vs.VerificationData)
	if err != nil {
		return err
	}
	sql := `INSERT INTO verification_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.conn.Pgx.Exec(ctx, sql,
		vs.SessionID,
		vs.WalletAddress,
		string(vs.Status),
		jsonb(vs.VerificationConfig),
		vs.QRCodeData,
		vs.UniversalLink,
		jsonb(vdata),
		vs.TxHash,
		vs.ExpiresAt,
		vs.CompletedAt,
		vs.CreatedAt,
		vs.UpdatedAt,
	)
	return storeError(err)
}

// Update writes the mutable fields of a session. A row already in a different terminal status is
// never overwritten.
func (s *session) Update(ctx context.Context, vs *domain.VerificationSession) error {
	vdata, err := marshalVerificationData(vs.VerificationData)
	if err != nil {
		return err
	}
	sql := `UPDATE verification_sessions
		SET status = $2, qr_code_data = $3, universal_link = $4, verification_data = $5, tx_hash = $6,
			completed_at = $7, updated_at = $8
		WHERE session_id = $1 AND (status = $2 OR NOT (status = ANY($9)))`
	tag, err := s.conn.Pgx.Exec(ctx, sql,
		vs.SessionID,
		string(vs.Status),
		vs.QRCodeData,
		vs.UniversalLink,
		jsonb(vdata),
		vs.TxHash,
		vs.CompletedAt,
		vs.UpdatedAt,
		terminalStatuses(),
	)
	if err != nil {
		return storeError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.conn.Pgx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM verification_sessions WHERE session_id = $1)`, vs.SessionID).Scan(&exists); err != nil {
		return storeError(err)
	}
	if !exists {
		return ErrSessionNotFound
	}
	return ErrSessionFinalized
}

// GetByID returns a session by id
func (s *session) GetByID(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	sql := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE session_id = $1`
	vs, err := scanSession(s.conn.Pgx.QueryRow(ctx, sql, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError(err)
	}
	return vs, nil
}

// GetActiveByWallet returns the active, not expired sessions of a wallet, newest first
func (s *session) GetActiveByWallet(ctx context.Context, wallet string, now time.Time) ([]domain.VerificationSession, error) {
	sql := `SELECT ` + sessionColumns + ` FROM verification_sessions
		WHERE wallet_address = $1 AND status = ANY($2) AND expires_at >= $3
		ORDER BY created_at DESC`
	rows, err := s.conn.Pgx.Query(ctx, sql, domain.NormalizeWallet(wallet), activeStatuses(), now)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	sessions := make([]domain.VerificationSession, 0)
	for rows.Next() {
		vs, err := scanSession(rows)
		if err != nil {
			return nil, storeError(err)
		}
		sessions = append(sessions, *vs)
	}
	return sessions, storeError(rows.Err())
}

// ExpireBefore marks every active session whose expiresAt is before now as expired
func (s *session) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	sql := `UPDATE verification_sessions SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND expires_at < $2`
	tag, err := s.conn.Pgx.Exec(ctx, sql, string(domain.SessionStatusExpired), now, activeStatuses())
	if err != nil {
		return 0, storeError(err)
	}
	return tag.RowsAffected(), nil
}

// Stats aggregates every persisted session. Active sessions past their expiry count as expired.
func (s *session) Stats(ctx context.Context, now time.Time) (*domain.SessionStats, error) {
	sql := `SELECT count(*),
			count(*) FILTER (WHERE status = ANY($1) AND expires_at >= $2),
			count(*) FILTER (WHERE status = $3),
			count(*) FILTER (WHERE status = $4 OR (status = ANY($1) AND expires_at < $2))
		FROM verification_sessions`
	var stats domain.SessionStats
	err := s.conn.Pgx.QueryRow(ctx, sql, activeStatuses(), now, string(domain.SessionStatusVerified), string(domain.SessionStatusExpired)).
		Scan(&stats.Total, &stats.Active, &stats.Completed, &stats.Expired)
	if err != nil {
		return nil, storeError(err)
	}
	return &stats, nil
}

func scanSession(row pgx.Row) (*domain.VerificationSession, error) {
	var (
		vs     domain.VerificationSession
		status string
		config pgtype.JSONB
		vdata  pgtype.JSONB
	)
	err := row.Scan(
		&vs.SessionID,
		&vs.WalletAddress,
		&status,
		&config,
		&vs.QRCodeData,
		&vs.UniversalLink,
		&vdata,
		&vs.TxHash,
		&vs.ExpiresAt,
		&vs.CompletedAt,
		&vs.CreatedAt,
		&vs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	vs.Status = domain.SessionStatus(status)
	vs.VerificationConfig = jsonbBytes(config)
	if raw := jsonbBytes(vdata); raw != nil {
		var data domain.VerificationData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decoding verification data of %s: %w", vs.SessionID, err)
		}
		vs.VerificationData = &data
	}
	return &vs, nil
}

func marshalVerificationData(data *domain.VerificationData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

func activeStatuses() []string {
	return statusStrings(domain.ActiveSessionStatuses())
}

func terminalStatuses() []string {
	return statusStrings([]domain.SessionStatus{
		domain.SessionStatusVerified,
		domain.SessionStatusFailed,
		domain.SessionStatusExpired,
		domain.SessionStatusCancelled,
	})
}

func statusStrings(statuses []domain.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
