package api

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/pkg/syncttlmap"
)

const limiterIdleTTL = 10 * time.Minute

// WalletLimiter is a token bucket per wallet. Buckets of idle wallets are dropped after a while.
type WalletLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *syncttlmap.Map[*rate.Limiter]
}

// NewWalletLimiter allows perMinute requests per wallet and minute, with bursts of the same size.
// A non positive perMinute disables the limiter.
func NewWalletLimiter(perMinute int) *WalletLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &WalletLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		buckets: syncttlmap.New[*rate.Limiter](limiterIdleTTL),
	}
}

// Allow reports whether wallet may perform one more request now
func (l *WalletLimiter) Allow(wallet string) bool {
	if l == nil {
		return true
	}
	var lim *rate.Limiter
	_ = l.buckets.Update(domain.NormalizeWallet(wallet), func(old *rate.Limiter, ok bool) (*rate.Limiter, bool, error) {
		if !ok {
			old = rate.NewLimiter(l.limit, l.burst)
		}
		lim = old
		return old, true, nil
	})
	return lim.Allow()
}

// Purge drops the buckets of idle wallets
func (l *WalletLimiter) Purge() int {
	if l == nil {
		return 0
	}
	return l.buckets.Purge()
}
