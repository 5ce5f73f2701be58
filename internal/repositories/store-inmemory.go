package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
)

// MemoryStore keeps every table in memory. It is convenient for testing and mirrors the
// semantics of the postgres repositories, including ErrStoreUnavailable when switched off.
type MemoryStore struct {
	mu                sync.Mutex
	unavailable       bool
	activityErr       error
	users             map[string]domain.User
	sessions          map[string]domain.VerificationSession
	selfVerifications []domain.SelfVerification
	sessionEvents     []domain.SessionEvent
	activities        []domain.Activity
}

// NewMemoryStore returns an empty in memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.VerificationSession),
	}
}

// SetUnavailable makes every repository call fail with ErrStoreUnavailable while on is true
func (m *MemoryStore) SetUnavailable(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = on
}

// SetActivityError makes activity writes fail with err. A nil err restores them.
func (m *MemoryStore) SetActivityError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activityErr = err
}

// Users returns the in memory user repository
func (m *MemoryStore) Users() ports.UserRepository { return &userInMemory{m} }

// Sessions returns the in memory session repository
func (m *MemoryStore) Sessions() ports.SessionRepository { return &sessionInMemory{m} }

// SessionEvents returns the in memory session audit trail repository
func (m *MemoryStore) SessionEvents() ports.SessionEventRepository { return &sessionEventInMemory{m} }

// SelfVerifications returns the in memory self verification repository
func (m *MemoryStore) SelfVerifications() ports.SelfVerificationRepository {
	return &selfVerificationInMemory{m}
}

// Activities returns the in memory activity repository
func (m *MemoryStore) Activities() ports.ActivityRepository { return &activityInMemory{m} }

// lock acquires the store and reports whether it is available
func (m *MemoryStore) lock() error {
	m.mu.Lock()
	if m.unavailable {
		m.mu.Unlock()
		return ErrStoreUnavailable
	}
	return nil
}

type userInMemory struct{ m *MemoryStore }

func (r *userInMemory) Upsert(_ context.Context, u *domain.User) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	wallet := domain.NormalizeWallet(u.WalletAddress)
	next := *u
	next.WalletAddress = wallet
	if prev, found := r.m.users[wallet]; found {
		next.ReputationScore = prev.ReputationScore
		next.CreatedAt = prev.CreatedAt
	}
	r.m.users[wallet] = next
	return nil
}

func (r *userInMemory) GetByWallet(_ context.Context, wallet string) (*domain.User, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	if u, found := r.m.users[domain.NormalizeWallet(wallet)]; found {
		return &u, nil
	}
	return nil, ErrUserNotFound
}

type sessionInMemory struct{ m *MemoryStore }

func (r *sessionInMemory) Save(_ context.Context, vs *domain.VerificationSession) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	r.m.sessions[vs.SessionID] = *vs.Clone()
	return nil
}

func (r *sessionInMemory) Update(_ context.Context, vs *domain.VerificationSession) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	prev, found := r.m.sessions[vs.SessionID]
	if !found {
		return ErrSessionNotFound
	}
	if prev.Status.IsTerminal() && prev.Status != vs.Status {
		return ErrSessionFinalized
	}
	next := *vs.Clone()
	next.WalletAddress = prev.WalletAddress
	next.ExpiresAt = prev.ExpiresAt
	next.CreatedAt = prev.CreatedAt
	next.VerificationConfig = prev.VerificationConfig
	r.m.sessions[vs.SessionID] = next
	return nil
}

func (r *sessionInMemory) GetByID(_ context.Context, sessionID string) (*domain.VerificationSession, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	if vs, found := r.m.sessions[sessionID]; found {
		return vs.Clone(), nil
	}
	return nil, ErrSessionNotFound
}

func (r *sessionInMemory) GetActiveByWallet(_ context.Context, wallet string, now time.Time) ([]domain.VerificationSession, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	wallet = domain.NormalizeWallet(wallet)
	sessions := make([]domain.VerificationSession, 0)
	for _, vs := range r.m.sessions {
		if vs.WalletAddress == wallet && vs.Status.IsActive() && !vs.IsExpiredAt(now) {
			sessions = append(sessions, *vs.Clone())
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].SessionID > sessions[j].SessionID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *sessionInMemory) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	if err := r.m.lock(); err != nil {
		return 0, err
	}
	defer r.m.mu.Unlock()
	var n int64
	for id, vs := range r.m.sessions {
		if vs.Status.IsActive() && vs.ExpiresAt.Before(now) {
			vs.Status = domain.SessionStatusExpired
			vs.UpdatedAt = now
			r.m.sessions[id] = vs
			n++
		}
	}
	return n, nil
}

func (r *sessionInMemory) Stats(_ context.Context, now time.Time) (*domain.SessionStats, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	var stats domain.SessionStats
	for _, vs := range r.m.sessions {
		stats.Total++
		switch vs.EffectiveStatus(now) {
		case domain.SessionStatusVerified:
			stats.Completed++
		case domain.SessionStatusExpired:
			stats.Expired++
		case domain.SessionStatusPending, domain.SessionStatusQRGenerated, domain.SessionStatusUserScanned, domain.SessionStatusVerifying:
			stats.Active++
		}
	}
	return &stats, nil
}

type sessionEventInMemory struct{ m *MemoryStore }

func (r *sessionEventInMemory) Save(_ context.Context, ev *domain.SessionEvent) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	r.m.sessionEvents = append(r.m.sessionEvents, *ev)
	return nil
}

func (r *sessionEventInMemory) GetBySession(_ context.Context, sessionID string) ([]domain.SessionEvent, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	events := make([]domain.SessionEvent, 0)
	for _, ev := range r.m.sessionEvents {
		if ev.SessionID == sessionID {
			events = append(events, ev)
		}
	}
	return events, nil
}

type selfVerificationInMemory struct{ m *MemoryStore }

func (r *selfVerificationInMemory) Save(_ context.Context, sv *domain.SelfVerification) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	r.m.selfVerifications = append(r.m.selfVerifications, *sv)
	return nil
}

func (r *selfVerificationInMemory) RevokeLatest(_ context.Context, wallet string, revokedAt time.Time) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	wallet = domain.NormalizeWallet(wallet)
	for i := len(r.m.selfVerifications) - 1; i >= 0; i-- {
		sv := &r.m.selfVerifications[i]
		if sv.WalletAddress == wallet && sv.Status == domain.SelfVerificationVerified {
			sv.Status = domain.SelfVerificationRevoked
			at := revokedAt
			sv.RevokedAt = &at
			return nil
		}
	}
	return ErrSelfVerificationNotFound
}

func (r *selfVerificationInMemory) GetByWallet(_ context.Context, wallet string) ([]domain.SelfVerification, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	wallet = domain.NormalizeWallet(wallet)
	records := make([]domain.SelfVerification, 0)
	for i := len(r.m.selfVerifications) - 1; i >= 0; i-- {
		if r.m.selfVerifications[i].WalletAddress == wallet {
			records = append(records, r.m.selfVerifications[i])
		}
	}
	return records, nil
}

type activityInMemory struct{ m *MemoryStore }

func (r *activityInMemory) Save(_ context.Context, a *domain.Activity) error {
	if err := r.m.lock(); err != nil {
		return err
	}
	defer r.m.mu.Unlock()
	if r.m.activityErr != nil {
		return r.m.activityErr
	}
	r.m.activities = append(r.m.activities, *a)
	return nil
}

func (r *activityInMemory) GetByWallet(_ context.Context, wallet string) ([]domain.Activity, error) {
	if err := r.m.lock(); err != nil {
		return nil, err
	}
	defer r.m.mu.Unlock()
	wallet = domain.NormalizeWallet(wallet)
	activities := make([]domain.Activity, 0)
	for i := len(r.m.activities) - 1; i >= 0; i-- {
		if r.m.activities[i].WalletAddress == wallet {
			activities = append(activities, r.m.activities[i])
		}
	}
	return activities, nil
}
