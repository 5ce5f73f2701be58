package ports

import (
	"context"
	"time"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// SessionRepository defines the interface for managing verification sessions
type SessionRepository interface {
	Save(ctx context.Context, session *domain.VerificationSession) error
	Update(ctx context.Context, session *domain.VerificationSession) error
	GetByID(ctx context.Context, sessionID string) (*domain.VerificationSession, error)
	// GetActiveByWallet returns the sessions of wallet in an active status and not yet expired at now,
	// newest first
	GetActiveByWallet(ctx context.Context, wallet string, now time.Time) ([]domain.VerificationSession, error)
	// ExpireBefore moves every active session whose expiresAt is before now to expired
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (*domain.SessionStats, error)
}

// SessionEventRepository stores the audit trail of session mutations
type SessionEventRepository interface {
	Save(ctx context.Context, event *domain.SessionEvent) error
	GetBySession(ctx context.Context, sessionID string) ([]domain.SessionEvent, error)
}
