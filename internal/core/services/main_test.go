package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
	"github.com/zkreputation/verification-node/internal/pubsub"
	"github.com/zkreputation/verification-node/internal/repositories"
	"github.com/zkreputation/verification-node/pkg/cache"
)

func TestMain(m *testing.M) {
	log.Config(log.LevelDebug, log.OutputText, os.Stdout)
	os.Exit(m.Run())
}

// testClock is a settable time source
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func randomWallet(t *testing.T) string {
	t.Helper()
	b := make([]byte, 20)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(b)
}

// fixture wires the services over an in memory store
type fixture struct {
	clock      *testClock
	store      *repositories.MemoryStore
	repos      *repositories.Repositories
	pubsub     *pubsub.Mock
	metrics    *metrics.Metrics
	sessions   *SessionManager
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   newTestClock(),
		store:   repositories.NewMemoryStore(),
		pubsub:  pubsub.NewMock(),
		metrics: metrics.New(),
	}
	f.repos = f.store.Repositories()
	f.sessions = NewSessionManager(f.repos.Sessions, f.repos.SessionEvents, cache.NewMemoryCache(), f.pubsub, f.metrics, SessionManagerConfig{
		Lifetime:      15 * time.Minute,
		SweepInterval: time.Minute,
		StatsCacheTTL: time.Minute,
		InstanceID:    "test-instance",
	}).WithClock(f.clock.Now)
	f.reconciler = NewReconciler(f.repos.Users, f.repos.SelfVerifications, f.repos.Activities, f.sessions, f.pubsub).WithClock(f.clock.Now)
	return f
}

func verifiedEvent(wallet, nationality string, block uint64, index uint) domain.VerificationEvent {
	return domain.VerificationEvent{
		Kind:        domain.EventKindUserVerified,
		Wallet:      wallet,
		Nationality: nationality,
		Gender:      "MALE",
		Age:         25,
		Timestamp:   time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC),
		TxHash:      txHash(block, index),
		BlockNumber: block,
		LogIndex:    index,
	}
}

func revokedEvent(wallet string, block uint64, index uint) domain.VerificationEvent {
	return domain.VerificationEvent{
		Kind:        domain.EventKindVerificationRevoked,
		Wallet:      wallet,
		Timestamp:   time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		TxHash:      txHash(block, index),
		BlockNumber: block,
		LogIndex:    index,
	}
}

func txHash(block uint64, index uint) string {
	return common.BytesToHash([]byte(fmt.Sprintf("tx-%d-%d", block, index))).Hex()
}

// scriptedLog is a log the fake source returns together with its decoding
type scriptedLog struct {
	event     domain.VerificationEvent
	decodeErr error
}

// fakeSource is a scripted event source
type fakeSource struct {
	mu        sync.Mutex
	height    uint64
	heightErr error
	queryErr  error
	logs      map[domain.EventKind][]scriptedLog
	queries   [][2]uint64
}

func newFakeSource(height uint64) *fakeSource {
	return &fakeSource{height: height, logs: map[domain.EventKind][]scriptedLog{}}
}

func (s *fakeSource) SetHeight(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = h
}

func (s *fakeSource) SetHeightErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heightErr = err
}

func (s *fakeSource) Emit(ev domain.VerificationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[ev.Kind] = append(s.logs[ev.Kind], scriptedLog{event: ev})
}

func (s *fakeSource) EmitMalformed(kind domain.EventKind, block uint64, index uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := domain.VerificationEvent{Kind: kind, TxHash: txHash(block, index), BlockNumber: block, LogIndex: index}
	s.logs[kind] = append(s.logs[kind], scriptedLog{event: ev, decodeErr: fmt.Errorf("malformed log")})
}

func (s *fakeSource) Queries() [][2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]uint64(nil), s.queries...)
}

func (s *fakeSource) CurrentHeight(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height, s.heightErr
}

func (s *fakeSource) QueryLogs(_ context.Context, kind domain.EventKind, from, to uint64) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if kind == domain.EventKindUserVerified {
		s.queries = append(s.queries, [2]uint64{from, to})
	}
	var logs []types.Log
	for _, sl := range s.logs[kind] {
		if sl.event.BlockNumber >= from && sl.event.BlockNumber <= to {
			logs = append(logs, types.Log{
				BlockNumber: sl.event.BlockNumber,
				Index:       sl.event.LogIndex,
				TxHash:      common.HexToHash(sl.event.TxHash),
			})
		}
	}
	return logs, nil
}

func (s *fakeSource) Decode(kind domain.EventKind, lg types.Log) (domain.VerificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.logs[kind] {
		if sl.event.BlockNumber == lg.BlockNumber && sl.event.LogIndex == lg.Index {
			return sl.event, sl.decodeErr
		}
	}
	return domain.VerificationEvent{}, fmt.Errorf("unknown log %d/%d", lg.BlockNumber, lg.Index)
}

// reconcilerFunc adapts a function to ports.VerificationReconciler
type reconcilerFunc func(ctx context.Context, ev domain.VerificationEvent) error

func (f reconcilerFunc) Apply(ctx context.Context, ev domain.VerificationEvent) error {
	return f(ctx, ev)
}
