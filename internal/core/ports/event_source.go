package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// EventSource reads verification events from the chain
type EventSource interface {
	// CurrentHeight returns the latest block number
	CurrentHeight(ctx context.Context) (uint64, error)
	// QueryLogs returns the raw logs of the given kind emitted in the inclusive range [from, to], in chain order
	QueryLogs(ctx context.Context, kind domain.EventKind, from, to uint64) ([]types.Log, error)
	// Decode turns a raw log into a typed event
	Decode(kind domain.EventKind, log types.Log) (domain.VerificationEvent, error)
}
