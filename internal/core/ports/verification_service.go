package ports

import (
	"context"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// VerificationReconciler applies decoded chain events to the record store
type VerificationReconciler interface {
	Apply(ctx context.Context, event domain.VerificationEvent) error
}

// ListenerService controls the contract polling listener
type ListenerService interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	LastProcessedBlock() uint64
}
