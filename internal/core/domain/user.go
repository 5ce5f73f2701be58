package domain

import (
	"time"

	"github.com/google/uuid"
)

// Verification levels of a user
const (
	VerificationLevelNone = 0
	VerificationLevelSelf = 2
)

// BaselineReputationScore is given to every new user
const BaselineReputationScore = 100

// VotingEligibleNationality is the nationality that grants voting eligibility
const VotingEligibleNationality = "INDIA"

// User is the projection of the on-chain verification state of a wallet
type User struct {
	WalletAddress     string
	SelfVerified      bool
	VerificationLevel int
	VotingEligible    bool
	Nationality       *string
	Gender            *string
	Age               *int
	ReputationScore   int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewUser returns an unverified user with the baseline reputation
func NewUser(wallet string, now time.Time) *User {
	return &User{
		WalletAddress:     NormalizeWallet(wallet),
		VerificationLevel: VerificationLevelNone,
		ReputationScore:   BaselineReputationScore,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ApplyVerified sets the verified projection from a UserVerified event
func (u *User) ApplyVerified(ev VerificationEvent, now time.Time) {
	nationality, gender, age := ev.Nationality, ev.Gender, ev.Age
	u.SelfVerified = true
	u.VerificationLevel = VerificationLevelSelf
	u.VotingEligible = nationality == VotingEligibleNationality
	u.Nationality = &nationality
	u.Gender = &gender
	u.Age = &age
	u.UpdatedAt = now
}

// ApplyRevoked clears the verified projection
func (u *User) ApplyRevoked(now time.Time) {
	u.SelfVerified = false
	u.VerificationLevel = VerificationLevelNone
	u.VotingEligible = false
	u.Nationality = nil
	u.Gender = nil
	u.Age = nil
	u.UpdatedAt = now
}

// SelfVerificationStatus is the status of a self verification audit record
type SelfVerificationStatus string

const (
	SelfVerificationVerified SelfVerificationStatus = "verified" // SelfVerificationVerified verified
	SelfVerificationRevoked  SelfVerificationStatus = "revoked"  // SelfVerificationRevoked revoked
)

// SelfVerification is an append only audit record of an on-chain verification
type SelfVerification struct {
	ID            uuid.UUID
	WalletAddress string
	Nationality   string
	Gender        string
	Age           int
	TxHash        string
	BlockNumber   uint64
	VerifiedAt    time.Time
	Status        SelfVerificationStatus
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// NewSelfVerification builds the audit record of a UserVerified event
func NewSelfVerification(ev VerificationEvent, now time.Time) *SelfVerification {
	return &SelfVerification{
		ID:            uuid.New(),
		WalletAddress: NormalizeWallet(ev.Wallet),
		Nationality:   ev.Nationality,
		Gender:        ev.Gender,
		Age:           ev.Age,
		TxHash:        ev.TxHash,
		BlockNumber:   ev.BlockNumber,
		VerifiedAt:    ev.Timestamp,
		Status:        SelfVerificationVerified,
		CreatedAt:     now,
	}
}
