package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies feed entries
type ActivityType string

// ActivitySelfVerified is recorded when a wallet completes a self verification
const ActivitySelfVerified ActivityType = "self_verified"

// Activity is an entry of the user activity feed
type Activity struct {
	ID            uuid.UUID
	WalletAddress string
	Type          ActivityType
	Description   string
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

// NewSelfVerifiedActivity builds the feed entry of a UserVerified event
func NewSelfVerifiedActivity(ev VerificationEvent, now time.Time) (*Activity, error) {
	metadata, err := json.Marshal(map[string]any{
		"nationality": ev.Nationality,
		"txHash":      ev.TxHash,
		"blockNumber": ev.BlockNumber,
	})
	if err != nil {
		return nil, err
	}
	return &Activity{
		ID:            uuid.New(),
		WalletAddress: NormalizeWallet(ev.Wallet),
		Type:          ActivitySelfVerified,
		Description:   fmt.Sprintf("Completed self verification (level %d)", VerificationLevelSelf),
		Metadata:      metadata,
		CreatedAt:     now,
	}, nil
}
