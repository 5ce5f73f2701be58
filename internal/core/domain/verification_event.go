package domain

import (
	"fmt"
	"time"
)

// EventKind identifies an on-chain verification event type
type EventKind string

const (
	// EventKindUserVerified is emitted by the contract when a wallet proves its identity
	EventKindUserVerified EventKind = "UserVerified"
	// EventKindVerificationRevoked is emitted when a previous verification is withdrawn
	EventKindVerificationRevoked EventKind = "VerificationRevoked"
)

// EventKinds returns every event kind the node listens to
func EventKinds() []EventKind {
	return []EventKind{EventKindUserVerified, EventKindVerificationRevoked}
}

// VerificationEvent is a decoded contract event. Nationality, Gender and Age are only
// meaningful for EventKindUserVerified.
type VerificationEvent struct {
	Kind        EventKind
	Wallet      string
	Nationality string
	Gender      string
	Age         int
	Timestamp   time.Time
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}

// Before orders events by their position in the chain
func (e VerificationEvent) Before(o VerificationEvent) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	return e.LogIndex < o.LogIndex
}

// VerificationData builds the session payload carried by a UserVerified event
func (e VerificationEvent) VerificationData() *VerificationData {
	return &VerificationData{
		Nationality: e.Nationality,
		Gender:      e.Gender,
		Age:         e.Age,
		TxHash:      e.TxHash,
		Timestamp:   e.Timestamp,
	}
}

func (e VerificationEvent) String() string {
	return fmt.Sprintf("%s(wallet=%s block=%d log=%d tx=%s)", e.Kind, e.Wallet, e.BlockNumber, e.LogIndex, e.TxHash)
}
