package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/event"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/pubsub"
	"github.com/zkreputation/verification-node/internal/repositories"
)

// Reconciler applies decoded contract events to users, self verifications and sessions.
// Applying an event twice leaves the user in the same state.
type Reconciler struct {
	users             ports.UserRepository
	selfVerifications ports.SelfVerificationRepository
	activities        ports.ActivityRepository
	sessions          ports.SessionService
	publisher         pubsub.Publisher
	now               func() time.Time
}

// NewReconciler - constructor. publisher is optional.
func NewReconciler(
	users ports.UserRepository,
	selfVerifications ports.SelfVerificationRepository,
	activities ports.ActivityRepository,
	sessions ports.SessionService,
	publisher pubsub.Publisher,
) *Reconciler {
	return &Reconciler{
		users:             users,
		selfVerifications: selfVerifications,
		activities:        activities,
		sessions:          sessions,
		publisher:         publisher,
		now:               time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Apply reconciles one event
func (r *Reconciler) Apply(ctx context.Context, ev domain.VerificationEvent) error {
	ctx = log.With(ctx, "event", ev.Kind, "wallet", ev.Wallet, "txHash", ev.TxHash, "block", ev.BlockNumber)
	switch ev.Kind {
	case domain.EventKindUserVerified:
		return r.applyVerified(ctx, ev)
	case domain.EventKindVerificationRevoked:
		return r.applyRevoked(ctx, ev)
	}
	return fmt.Errorf("%w: %s", ErrUnknownEventKind, ev.Kind)
}

func (r *Reconciler) applyVerified(ctx context.Context, ev domain.VerificationEvent) error {
	now := r.now()
	user, err := r.users.GetByWallet(ctx, ev.Wallet)
	if errors.Is(err, repositories.ErrUserNotFound) {
		user = domain.NewUser(ev.Wallet, now)
	} else if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	user.ApplyVerified(ev, now)
	if err := r.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}

	if err := r.selfVerifications.Save(ctx, domain.NewSelfVerification(ev, now)); err != nil {
		return fmt.Errorf("saving self verification: %w", err)
	}

	active, err := r.sessions.GetActiveSessionsForWallet(ctx, ev.Wallet)
	if err != nil {
		return fmt.Errorf("loading active sessions: %w", err)
	}
	for _, vs := range active {
		err := r.sessions.CompleteVerification(ctx, vs.SessionID, ev.VerificationData())
		switch {
		case err == nil:
		case errors.Is(err, repositories.ErrStoreUnavailable):
			return fmt.Errorf("completing session %s: %w", vs.SessionID, err)
		default:
			// the session finished meanwhile (cancelled, expired)
			log.Warn(ctx, "session not completed", "err", err, "sessionID", vs.SessionID)
		}
	}

	activity, err := domain.NewSelfVerifiedActivity(ev, now)
	if err == nil {
		err = r.activities.Save(ctx, activity)
	}
	if err != nil {
		log.Warn(ctx, "saving activity", "err", err)
	}

	r.publish(ctx, event.UserVerifiedEvent, &event.UserVerified{
		Wallet:         user.WalletAddress,
		Nationality:    ev.Nationality,
		VotingEligible: user.VotingEligible,
		TxHash:         ev.TxHash,
		BlockNumber:    ev.BlockNumber,
	})
	log.Info(ctx, "user verified", "votingEligible", user.VotingEligible, "sessions", len(active))
	return nil
}

func (r *Reconciler) applyRevoked(ctx context.Context, ev domain.VerificationEvent) error {
	now := r.now()
	user, err := r.users.GetByWallet(ctx, ev.Wallet)
	if errors.Is(err, repositories.ErrUserNotFound) {
		log.Warn(ctx, "revocation for unknown wallet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	user.ApplyRevoked(now)
	if err := r.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}

	revokedAt := ev.Timestamp
	if revokedAt.IsZero() {
		revokedAt = now
	}
	err = r.selfVerifications.RevokeLatest(ctx, ev.Wallet, revokedAt)
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrSelfVerificationNotFound):
		// already revoked by a previous run of this range
		log.Debug(ctx, "no self verification left to revoke")
	default:
		return fmt.Errorf("revoking self verification: %w", err)
	}

	r.publish(ctx, event.VerificationRevokedEvent, &event.VerificationRevoked{
		Wallet:      user.WalletAddress,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
	})
	log.Info(ctx, "verification revoked")
	return nil
}

func (r *Reconciler) publish(ctx context.Context, topic string, ev pubsub.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, topic, ev); err != nil {
		log.Warn(ctx, "publishing event", "err", err, "topic", topic)
	}
}
