package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionStatus is the lifecycle status of a verification session
type SessionStatus string

// Session statuses. The first four form the active set, in forward order.
const (
	SessionStatusPending     SessionStatus = "pending"
	SessionStatusQRGenerated SessionStatus = "qr_generated"
	SessionStatusUserScanned SessionStatus = "user_scanned"
	SessionStatusVerifying   SessionStatus = "verifying"
	SessionStatusVerified    SessionStatus = "verified"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusExpired     SessionStatus = "expired"
	SessionStatusCancelled   SessionStatus = "cancelled"
)

// DefaultSessionLifetime is used when no lifetime is configured
const DefaultSessionLifetime = 15 * time.Minute

const sessionIDPrefix = "vs"

var activeRank = map[SessionStatus]int{
	SessionStatusPending:     1,
	SessionStatusQRGenerated: 2,
	SessionStatusUserScanned: 3,
	SessionStatusVerifying:   4,
}

// ActiveSessionStatuses returns the statuses of a session still in flight
func ActiveSessionStatuses() []SessionStatus {
	return []SessionStatus{SessionStatusPending, SessionStatusQRGenerated, SessionStatusUserScanned, SessionStatusVerifying}
}

// IsActive tells whether the status belongs to the active set
func (s SessionStatus) IsActive() bool {
	_, ok := activeRank[s]
	return ok
}

// IsTerminal tells whether the status is a final one
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusVerified, SessionStatusFailed, SessionStatusExpired, SessionStatusCancelled:
		return true
	}
	return false
}

// IsValid tells whether s is a known status
func (s SessionStatus) IsValid() bool {
	return s.IsActive() || s.IsTerminal()
}

// CanTransitionTo reports whether moving from s to next keeps the state machine moving forward.
// Re-asserting the current status is allowed so attached fields can be rewritten.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return activeRank[next] > activeRank[s]
}

// VerificationData is attached to a session when the on-chain verification lands
type VerificationData struct {
	Nationality string    `json:"nationality"`
	Gender      string    `json:"gender"`
	Age         int       `json:"age"`
	TxHash      string    `json:"txHash"`
	Timestamp   time.Time `json:"timestamp"`
}

// VerificationSession is a time boxed verification attempt of a wallet
type VerificationSession struct {
	SessionID          string
	WalletAddress      string
	Status             SessionStatus
	VerificationConfig json.RawMessage
	QRCodeData         *string
	UniversalLink      *string
	VerificationData   *VerificationData
	TxHash             *string
	ExpiresAt          time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewVerificationSession builds a pending session for wallet created at now
func NewVerificationSession(wallet string, config json.RawMessage, now time.Time, lifetime time.Duration) *VerificationSession {
	wallet = NormalizeWallet(wallet)
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &VerificationSession{
		SessionID:          NewSessionID(wallet, now),
		WalletAddress:      wallet,
		Status:             SessionStatusPending,
		VerificationConfig: config,
		ExpiresAt:          now.Add(lifetime),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewSessionID returns an identifier embedding the wallet and the creation time
func NewSessionID(wallet string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%s", sessionIDPrefix, NormalizeWallet(wallet), now.UnixMilli(), ulid.Make().String())
}

// IsExpiredAt tells whether the session lifetime has elapsed at now
func (s *VerificationSession) IsExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// EffectiveStatus returns the status a reader must observe at now. An active session whose
// lifetime has elapsed is expired even if no sweep has persisted it yet.
func (s *VerificationSession) EffectiveStatus(now time.Time) SessionStatus {
	if s.Status.IsActive() && s.IsExpiredAt(now) {
		return SessionStatusExpired
	}
	return s.Status
}

// IsActiveAt tells whether the session is still in flight at now
func (s *VerificationSession) IsActiveAt(now time.Time) bool {
	return s.EffectiveStatus(now).IsActive()
}

// Clone returns a deep copy, so cached sessions are never shared with callers
func (s *VerificationSession) Clone() *VerificationSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.VerificationConfig != nil {
		c.VerificationConfig = append(json.RawMessage(nil), s.VerificationConfig...)
	}
	c.QRCodeData = cloneString(s.QRCodeData)
	c.UniversalLink = cloneString(s.UniversalLink)
	c.TxHash = cloneString(s.TxHash)
	if s.VerificationData != nil {
		vd := *s.VerificationData
		c.VerificationData = &vd
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SessionUpdate carries the optional fields of a status update. Nil fields are left untouched.
type SessionUpdate struct {
	QRCodeData       *string
	UniversalLink    *string
	VerificationData *VerificationData
	TxHash           *string
}

// Apply copies the non nil fields of u into s
func (u *SessionUpdate) Apply(s *VerificationSession) {
	if u == nil {
		return
	}
	if u.QRCodeData != nil {
		s.QRCodeData = cloneString(u.QRCodeData)
	}
	if u.UniversalLink != nil {
		s.UniversalLink = cloneString(u.UniversalLink)
	}
	if u.VerificationData != nil {
		vd := *u.VerificationData
		s.VerificationData = &vd
	}
	if u.TxHash != nil {
		s.TxHash = cloneString(u.TxHash)
	}
}

// SessionStats aggregates sessions by lifecycle bucket
type SessionStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Expired   int64 `json:"expired"`
}

// SessionEvent is an audit record of a session mutation
type SessionEvent struct {
	ID        uuid.UUID
	SessionID string
	Status    SessionStatus
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NormalizeWallet lowercases and trims a chain address
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
