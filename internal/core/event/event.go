package event

import (
	"encoding/json"

	"github.com/zkreputation/verification-node/internal/pubsub"
)

const (
	SessionChangedEvent      = "sessionChangedEvent"      // SessionChangedEvent a session was written by some instance
	UserVerifiedEvent        = "userVerifiedEvent"        // UserVerifiedEvent a wallet completed a self verification
	VerificationRevokedEvent = "verificationRevokedEvent" // VerificationRevokedEvent a verification was revoked on chain
)

// SessionChanged defines the sessionChanged data. Origin is the instance that wrote the session.
type SessionChanged struct {
	SessionID string `json:"sessionID"`
	Status    string `json:"status"`
	Origin    string `json:"origin"`
}

// Marshal marshals the event into a pubsub.Message
func (ev *SessionChanged) Marshal() (msg pubsub.Message, err error) {
	return json.Marshal(ev)
}

// Unmarshal creates an event from that message
func (ev *SessionChanged) Unmarshal(msg pubsub.Message) error {
	return json.Unmarshal(msg, &ev)
}

// UserVerified defines the userVerified data
type UserVerified struct {
	Wallet         string `json:"wallet"`
	Nationality    string `json:"nationality"`
	VotingEligible bool   `json:"votingEligible"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
}

// Marshal marshals the event into a pubsub.Message
func (ev *UserVerified) Marshal() (msg pubsub.Message, err error) {
	return json.Marshal(ev)
}

// Unmarshal creates an event from that message
func (ev *UserVerified) Unmarshal(msg pubsub.Message) error {
	return json.Unmarshal(msg, &ev)
}

// VerificationRevoked defines the verificationRevoked data
type VerificationRevoked struct {
	Wallet      string `json:"wallet"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Marshal marshals the event into a pubsub.Message
func (ev *VerificationRevoked) Marshal() (msg pubsub.Message, err error) {
	return json.Marshal(ev)
}

// Unmarshal creates an event from that message
func (ev *VerificationRevoked) Unmarshal(msg pubsub.Message) error {
	return json.Unmarshal(msg, &ev)
}
