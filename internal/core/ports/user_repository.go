package ports

import (
	"context"
	"time"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// UserRepository stores the verification projection of every wallet
type UserRepository interface {
	// Upsert inserts the user or replaces its verification fields. ReputationScore and CreatedAt are
	// only written on insert.
	Upsert(ctx context.Context, user *domain.User) error
	GetByWallet(ctx context.Context, wallet string) (*domain.User, error)
}

// SelfVerificationRepository stores self verification audit records
type SelfVerificationRepository interface {
	Save(ctx context.Context, sv *domain.SelfVerification) error
	// RevokeLatest marks the newest verified record of wallet as revoked
	RevokeLatest(ctx context.Context, wallet string, revokedAt time.Time) error
	GetByWallet(ctx context.Context, wallet string) ([]domain.SelfVerification, error)
}

// ActivityRepository stores user activity feed entries
type ActivityRepository interface {
	Save(ctx context.Context, activity *domain.Activity) error
	GetByWallet(ctx context.Context, wallet string) ([]domain.Activity, error)
}
