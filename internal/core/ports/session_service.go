package ports

import (
	"context"
	"encoding/json"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// SessionService is the interface implemented by the verification session manager
type SessionService interface {
	CreateSession(ctx context.Context, wallet string, config json.RawMessage) (*domain.VerificationSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, update *domain.SessionUpdate) error
	GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error)
	GetActiveSessionsForWallet(ctx context.Context, wallet string) ([]domain.VerificationSession, error)
	CancelSession(ctx context.Context, sessionID string) error
	CompleteVerification(ctx context.Context, sessionID string, data *domain.VerificationData) error
	GetSessionStats(ctx context.Context) (*domain.SessionStats, error)
}
