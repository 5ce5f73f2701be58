package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/event"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
	"github.com/zkreputation/verification-node/internal/pubsub"
	"github.com/zkreputation/verification-node/pkg/cache"
	"github.com/zkreputation/verification-node/pkg/syncttlmap"
)

const sessionStatsCacheKey = "verifier:session-stats"

// SessionManagerConfig holds the timings of the session manager
type SessionManagerConfig struct {
	Lifetime      time.Duration
	SweepInterval time.Duration
	StatsCacheTTL time.Duration
	InstanceID    string
}

// SessionManager owns the lifecycle of verification sessions. Sessions are written through to the
// store and kept in a local cache where every read-modify-write of one session is atomic.
type SessionManager struct {
	cfg       SessionManagerConfig
	sessions  ports.SessionRepository
	events    ports.SessionEventRepository
	stats     cache.Cache
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time

	cached  *syncttlmap.Map[*domain.VerificationSession]
	wallets *syncttlmap.Map[struct{}]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewSessionManager - constructor. stats, publisher and m are optional.
func NewSessionManager(
	sessions ports.SessionRepository,
	events ports.SessionEventRepository,
	stats cache.Cache,
	publisher pubsub.Publisher,
	m *metrics.Metrics,
	cfg SessionManagerConfig,
) *SessionManager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = domain.DefaultSessionLifetime
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &SessionManager{
		cfg:       cfg,
		sessions:  sessions,
		events:    events,
		stats:     stats,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		// finished sessions are dropped from the cache after twice the lifetime
		cached:  syncttlmap.New[*domain.VerificationSession](2 * cfg.Lifetime),
		wallets: syncttlmap.New[struct{}](0),
	}
}

// WithClock replaces the time source. Used by tests.
func (sm *SessionManager) WithClock(now func() time.Time) *SessionManager {
	sm.now = now
	sm.cached.WithClock(now)
	return sm
}

// CreateSession creates a pending session for wallet. Any other active session of the wallet is
// cancelled first, under a lock held per wallet.
func (sm *SessionManager) CreateSession(ctx context.Context, wallet string, config json.RawMessage) (*domain.VerificationSession, error) {
	wallet = domain.NormalizeWallet(wallet)
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	if !json.Valid(config) {
		return nil, ErrInvalidSessionConfig
	}

	var created *domain.VerificationSession
	err := sm.wallets.Update(wallet, func(struct{}, bool) (struct{}, bool, error) {
		now := sm.now()
		prior, err := sm.sessions.GetActiveByWallet(ctx, wallet, now)
		if err != nil {
			return struct{}{}, false, fmt.Errorf("loading active sessions: %w", err)
		}
		for _, vs := range prior {
			err := sm.transition(ctx, vs.SessionID, domain.SessionStatusCancelled, nil, "superseded")
			if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
				return struct{}{}, false, fmt.Errorf("cancelling session %s: %w", vs.SessionID, err)
			}
		}

		vs := domain.NewVerificationSession(wallet, config, now, sm.cfg.Lifetime)
		if err := sm.sessions.Save(ctx, vs); err != nil {
			return struct{}{}, false, fmt.Errorf("saving session: %w", err)
		}
		sm.cached.Store(vs.SessionID, vs.Clone())
		created = vs
		return struct{}{}, false, nil
	})
	if err != nil {
		log.Error(ctx, "creating verification session", "err", err, "wallet", wallet)
		return nil, err
	}

	sm.metrics.SessionCreated()
	sm.afterWrite(ctx, created, "", "created")
	log.Info(ctx, "verification session created", "sessionID", created.SessionID, "wallet", wallet)
	return created.Clone(), nil
}

// UpdateSessionStatus moves the session to status and applies the optional fields of update.
// Sessions only become verified through CompleteVerification.
func (sm *SessionManager) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, update *domain.SessionUpdate) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	if status == domain.SessionStatusVerified {
		return ErrStatusReserved
	}
	return sm.transition(ctx, sessionID, status, update, "")
}

// GetSession returns the session with its effective status
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	if vs, ok := sm.cached.Load(sessionID); ok {
		return sm.view(vs), nil
	}
	// the store read and the backfill share the key lock, so a concurrent write of the session
	// either happens before the read or finds the backfilled entry
	var found *domain.VerificationSession
	err := sm.cached.Update(sessionID, func(old *domain.VerificationSession, ok bool) (*domain.VerificationSession, bool, error) {
		if ok {
			found = old
			return old, true, nil
		}
		vs, err := sm.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, false, sessionError(err)
		}
		found = vs
		return vs.Clone(), true, nil
	})
	if err != nil {
		return nil, err
	}
	return sm.view(found), nil
}

// GetActiveSessionsForWallet returns the sessions of wallet still in flight, newest first
func (sm *SessionManager) GetActiveSessionsForWallet(ctx context.Context, wallet string) ([]domain.VerificationSession, error) {
	return sm.sessions.GetActiveByWallet(ctx, domain.NormalizeWallet(wallet), sm.now())
}

// CancelSession moves the session to cancelled and evicts it from the cache
func (sm *SessionManager) CancelSession(ctx context.Context, sessionID string) error {
	return sm.transition(ctx, sessionID, domain.SessionStatusCancelled, nil, "cancelled")
}

// CompleteVerification marks the session verified with the data of the on-chain event
func (sm *SessionManager) CompleteVerification(ctx context.Context, sessionID string, data *domain.VerificationData) error {
	update := &domain.SessionUpdate{VerificationData: data}
	if data != nil && data.TxHash != "" {
		txHash := data.TxHash
		update.TxHash = &txHash
	}
	return sm.transition(ctx, sessionID, domain.SessionStatusVerified, update, "on-chain verification")
}

// GetSessionStats aggregates every persisted session. Results are cached for a few seconds.
func (sm *SessionManager) GetSessionStats(ctx context.Context) (*domain.SessionStats, error) {
	if sm.stats != nil {
		var stats domain.SessionStats
		if sm.stats.Get(ctx, sessionStatsCacheKey, &stats) {
			return &stats, nil
		}
	}
	stats, err := sm.sessions.Stats(ctx, sm.now())
	if err != nil {
		return nil, err
	}
	if sm.stats != nil && sm.cfg.StatsCacheTTL > 0 {
		if err := sm.stats.Set(ctx, sessionStatsCacheKey, *stats, sm.cfg.StatsCacheTTL); err != nil {
			log.Warn(ctx, "caching session stats", "err", err)
		}
	}
	return stats, nil
}

// Invalidate drops a session from the local cache
func (sm *SessionManager) Invalidate(sessionID string) {
	sm.cached.Delete(sessionID)
}

// HandleSessionChanged is the pubsub handler that keeps the cache of this instance coherent with
// writes done by other instances
func (sm *SessionManager) HandleSessionChanged(ctx context.Context, msg pubsub.Message) error {
	var ev event.SessionChanged
	if err := ev.Unmarshal(msg); err != nil {
		log.Error(ctx, "session changed: cannot decode event", "err", err)
		return err
	}
	if ev.Origin == sm.cfg.InstanceID {
		return nil
	}
	log.Debug(ctx, "session changed by peer", "sessionID", ev.SessionID, "status", ev.Status, "origin", ev.Origin)
	sm.Invalidate(ev.SessionID)
	sm.invalidateStats(ctx)
	return nil
}

// Start launches the expiry sweep. Calling Start on a running manager does nothing.
func (sm *SessionManager) Start(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.running {
		log.Warn(ctx, "session sweeper already running")
		return
	}
	sm.running = true
	sm.stopCh = make(chan struct{})
	sm.done = make(chan struct{})
	go sm.sweepLoop(context.WithoutCancel(ctx), sm.stopCh, sm.done)
	log.Info(ctx, "session sweeper started", "interval", sm.cfg.SweepInterval)
}

// Stop halts the sweep and waits for an in-flight sweep to finish
func (sm *SessionManager) Stop() {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = false
	close(sm.stopCh)
	done := sm.done
	sm.mu.Unlock()
	<-done
}

func (sm *SessionManager) sweepLoop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(sm.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sm.Sweep(ctx); err != nil {
				log.Error(ctx, "session sweep failed", "err", err)
			}
		}
	}
}

// Sweep expires the cached sessions whose lifetime elapsed, then expires in one statement every
// other active session of the store past its expiry.
func (sm *SessionManager) Sweep(ctx context.Context) error {
	now := sm.now()
	var expired, finished []string
	sm.cached.Range(func(id string, vs *domain.VerificationSession) bool {
		switch {
		case vs.Status.IsActive() && vs.IsExpiredAt(now):
			expired = append(expired, id)
		case vs.Status == domain.SessionStatusExpired || vs.Status == domain.SessionStatusCancelled:
			finished = append(finished, id)
		}
		return true
	})

	for _, id := range expired {
		err := sm.transition(ctx, id, domain.SessionStatusExpired, nil, "expired")
		if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
			log.Warn(ctx, "expiring cached session", "err", err, "sessionID", id)
		}
	}
	sm.metrics.SessionsExpired("cache", len(expired))
	for _, id := range finished {
		sm.cached.Delete(id)
	}
	purged := sm.cached.Purge()

	n, err := sm.sessions.ExpireBefore(ctx, now)
	if err != nil {
		return fmt.Errorf("expiring stored sessions: %w", err)
	}
	sm.metrics.SessionsExpired("store", int(n))
	if n > 0 || len(expired) > 0 {
		sm.invalidateStats(ctx)
	}
	log.Debug(ctx, "session sweep done", "cacheExpired", len(expired), "storeExpired", n, "purged", purged)
	return nil
}

// transition is the single read-modify-write path of a session. It runs under the cache lock of
// sessionID, so concurrent writers of one session are serialised.
func (sm *SessionManager) transition(ctx context.Context, sessionID string, status domain.SessionStatus, update *domain.SessionUpdate, reason string) error {
	var (
		updated *domain.VerificationSession
		from    domain.SessionStatus
	)
	err := sm.cached.Update(sessionID, func(current *domain.VerificationSession, ok bool) (*domain.VerificationSession, bool, error) {
		if !ok {
			vs, err := sm.sessions.GetByID(ctx, sessionID)
			if err != nil {
				return nil, false, sessionError(err)
			}
			current = vs
		}
		now := sm.now()
		from = current.EffectiveStatus(now)
		if !from.CanTransitionTo(status) {
			return current, ok, ErrInvalidStatusTransition
		}
		if from.IsTerminal() && current.Status == status {
			// terminal status re-asserted, nothing to write
			return current, ok, nil
		}

		next := current.Clone()
		next.Status = status
		update.Apply(next)
		next.UpdatedAt = now
		if status == domain.SessionStatusVerified && next.CompletedAt == nil {
			next.CompletedAt = &now
		}
		if err := sm.sessions.Update(ctx, next); err != nil {
			return current, ok, sessionError(err)
		}
		updated = next
		keep := status != domain.SessionStatusCancelled && status != domain.SessionStatusExpired
		return next.Clone(), keep, nil
	})
	if errors.Is(err, ErrInvalidStatusTransition) {
		// the store may know better than a stale cache entry
		sm.cached.Delete(sessionID)
	}
	if err != nil {
		log.Warn(ctx, "session status not updated", "err", err, "sessionID", sessionID, "status", status)
		return err
	}
	if updated == nil {
		return nil
	}

	sm.metrics.SessionTransition(string(status))
	sm.afterWrite(ctx, updated, from, reason)
	log.Info(ctx, "session status updated", "sessionID", sessionID, "from", from, "to", status)
	return nil
}

// afterWrite runs the best effort side effects of a session write
func (sm *SessionManager) afterWrite(ctx context.Context, vs *domain.VerificationSession, from domain.SessionStatus, reason string) {
	sm.audit(ctx, vs, from, reason)
	sm.invalidateStats(ctx)
	sm.publish(ctx, vs)
}

func (sm *SessionManager) audit(ctx context.Context, vs *domain.VerificationSession, from domain.SessionStatus, reason string) {
	if sm.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"from":   from,
		"to":     vs.Status,
		"reason": reason,
	})
	if err != nil {
		log.Warn(ctx, "encoding session event", "err", err)
		return
	}
	ev := &domain.SessionEvent{
		ID:        uuid.New(),
		SessionID: vs.SessionID,
		Status:    vs.Status,
		Payload:   payload,
		CreatedAt: sm.now(),
	}
	if err := sm.events.Save(ctx, ev); err != nil {
		log.Warn(ctx, "saving session event", "err", err, "sessionID", vs.SessionID)
	}
}

func (sm *SessionManager) publish(ctx context.Context, vs *domain.VerificationSession) {
	if sm.publisher == nil {
		return
	}
	ev := &event.SessionChanged{SessionID: vs.SessionID, Status: string(vs.Status), Origin: sm.cfg.InstanceID}
	if err := sm.publisher.Publish(ctx, event.SessionChangedEvent, ev); err != nil {
		log.Warn(ctx, "publishing session changed", "err", err, "sessionID", vs.SessionID)
	}
}

func (sm *SessionManager) invalidateStats(ctx context.Context) {
	if sm.stats == nil {
		return
	}
	if err := sm.stats.Delete(ctx, sessionStatsCacheKey); err != nil {
		log.Warn(ctx, "invalidating session stats", "err", err)
	}
}

func (sm *SessionManager) view(vs *domain.VerificationSession) *domain.VerificationSession {
	c := vs.Clone()
	c.Status = c.EffectiveStatus(sm.now())
	return c
}
