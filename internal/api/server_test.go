package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkreputation/verification-node/internal/common"
	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/core/services"
	"github.com/zkreputation/verification-node/internal/db/tests"
	"github.com/zkreputation/verification-node/internal/gateways"
	"github.com/zkreputation/verification-node/internal/health"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
	"github.com/zkreputation/verification-node/internal/repositories"
	"github.com/zkreputation/verification-node/pkg/cache"
)

const wallet = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

func TestMain(m *testing.M) {
	log.Config(log.LevelDebug, log.OutputText, os.Stdout)
	os.Exit(m.Run())
}

type fakeListener struct {
	mu       sync.Mutex
	running  bool
	block    uint64
	startErr error
}

func (l *fakeListener) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return l.startErr
	}
	l.running = true
	return nil
}

func (l *fakeListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}

func (l *fakeListener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *fakeListener) LastProcessedBlock() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block
}

type testServer struct {
	store    *repositories.MemoryStore
	listener *fakeListener
	handler  http.Handler
}

func newTestServer(t *testing.T, perMinute int, status *health.Status) *testServer {
	t.Helper()
	store := repositories.NewMemoryStore()
	repos := store.Repositories()
	m := metrics.New()
	sessions := services.NewSessionManager(repos.Sessions, repos.SessionEvents, cache.NewMemoryCache(), nil, m, services.SessionManagerConfig{
		Lifetime:      15 * time.Minute,
		StatsCacheTTL: time.Second,
	})
	listener := &fakeListener{block: 1000}
	server := NewServer(sessions, listener, status, NewWalletLimiter(perMinute))
	cfg := config.API{CORSAllowedOrigins: []string{"*"}}
	return &testServer{store: store, listener: listener, handler: server.Handler(context.Background(), cfg, m)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, tests.JSONBody(t, body))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) createSession(t *testing.T, wallet string) Session {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{WalletAddress: wallet})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, 100, nil)

	type expected struct {
		httpCode int
		message  string
	}
	type testConfig struct {
		name     string
		body     any
		expected expected
	}
	for _, tc := range []testConfig{
		{
			name:     "created with checksum address",
			body:     CreateSessionRequest{WalletAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3", Config: json.RawMessage(`{"minimumAge":18}`)},
			expected: expected{httpCode: http.StatusCreated},
		},
		{
			name:     "invalid wallet",
			body:     CreateSessionRequest{WalletAddress: "not-a-wallet"},
			expected: expected{httpCode: http.StatusBadRequest, message: services.ErrInvalidWallet.Error()},
		},
		{
			name:     "unknown field",
			body:     map[string]any{"wallet": wallet},
			expected: expected{httpCode: http.StatusBadRequest},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/v1/sessions", tc.body)
			require.Equal(t, tc.expected.httpCode, rr.Code, rr.Body.String())
			switch tc.expected.httpCode {
			case http.StatusCreated:
				var res Session
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
				assert.Equal(t, wallet, res.WalletAddress)
				assert.Equal(t, "pending", res.Status)
				assert.True(t, strings.HasPrefix(res.SessionID, "vs_"+wallet+"_"))
				assert.JSONEq(t, `{"minimumAge":18}`, string(res.Config))
				assert.True(t, res.CreatedAt.Time().Add(15*time.Minute).Equal(res.ExpiresAt.Time()))
			default:
				var res GenericErrorMessage
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
				if tc.expected.message != "" {
					assert.Equal(t, tc.expected.message, res.Message)
				}
			}
		})
	}
}

func TestCreateSessionRateLimit(t *testing.T) {
	ts := newTestServer(t, 2, nil)
	ts.createSession(t, wallet)
	ts.createSession(t, wallet)

	rr := ts.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{WalletAddress: wallet})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// other wallets have their own bucket
	ts.createSession(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, 100, nil)
	created := ts.createSession(t, wallet)
	path := "/v1/sessions/" + created.SessionID

	rr := ts.do(t, http.MethodPost, path+"/status", UpdateSessionStatusRequest{
		Status:        "qr_generated",
		QRCodeData:    common.ToPointer("qr-payload"),
		UniversalLink: common.ToPointer("https://self.xyz/verify"),
	})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	// only an on-chain event verifies a session
	rr = ts.do(t, http.MethodPost, path+"/status", UpdateSessionStatusRequest{Status: "verified"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "qr_generated", got.Status)
	require.NotNil(t, got.QRCodeData)
	assert.Equal(t, "qr-payload", *got.QRCodeData)

	rr = ts.do(t, http.MethodPost, path+"/status", UpdateSessionStatusRequest{Status: "pending"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, path+"/status", UpdateSessionStatusRequest{Status: "finished"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/wallets/%s/sessions/active", strings.ToUpper(wallet)), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var active []Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, created.SessionID, active[0].SessionID)

	rr = ts.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "cancelled", got.Status)

	rr = ts.do(t, http.MethodPost, path+"/status", UpdateSessionStatusRequest{Status: "verifying"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/wallets/%s/sessions/active", wallet), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/v1/sessions/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":1,"active":0,"completed":0,"expired":0}`, rr.Body.String())
}

func TestSessionNotFound(t *testing.T) {
	ts := newTestServer(t, 100, nil)
	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/v1/sessions/vs_missing", nil},
		{http.MethodDelete, "/v1/sessions/vs_missing", nil},
		{http.MethodPost, "/v1/sessions/vs_missing/status", UpdateSessionStatusRequest{Status: "verifying"}},
	} {
		t.Run(tc.method, func(t *testing.T) {
			rr := ts.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}
}

func TestStoreUnavailable(t *testing.T) {
	ts := newTestServer(t, 100, nil)
	ts.store.SetUnavailable(true)
	rr := ts.do(t, http.MethodGet, "/v1/sessions/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListenerEndpoints(t *testing.T) {
	ts := newTestServer(t, 100, nil)

	rr := ts.do(t, http.MethodGet, "/v1/listener", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":false,"lastProcessedBlock":1000}`, rr.Body.String())

	rr = ts.do(t, http.MethodPost, "/v1/listener/start", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":true,"lastProcessedBlock":1000}`, rr.Body.String())

	rr = ts.do(t, http.MethodPost, "/v1/listener/stop", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"running":false,"lastProcessedBlock":1000}`, rr.Body.String())

	ts.listener.startErr = fmt.Errorf("%w: dial tcp", gateways.ErrChainUnavailable)
	rr = ts.do(t, http.MethodPost, "/v1/listener/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStatus(t *testing.T) {
	status := health.New(nil, nil, nil).
		Register(health.DB, health.PingFunc(func(context.Context) error { return nil }))
	ts := newTestServer(t, 100, status)

	rr := ts.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, map[string]bool{health.DB: true}, res.Status)
	require.NotNil(t, res.Listener)
	assert.Equal(t, uint64(1000), res.Listener.LastProcessedBlock)

	status.Register(health.Chain, health.PingFunc(func(context.Context) error { return errors.New("down") }))
	rr = ts.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",route="/status",status="200"} 1`)
}

func TestWalletLimiter(t *testing.T) {
	assert.Nil(t, NewWalletLimiter(0))
	var disabled *WalletLimiter
	assert.True(t, disabled.Allow(wallet))

	l := NewWalletLimiter(1)
	assert.True(t, l.Allow(wallet))
	assert.False(t, l.Allow(strings.ToUpper(wallet)))
	assert.Equal(t, 0, l.Purge())
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{services.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", services.ErrInvalidStatusTransition), http.StatusConflict},
		{services.ErrInvalidSessionConfig, http.StatusBadRequest},
		{services.ErrStatusReserved, http.StatusUnprocessableEntity},
		{repositories.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrRateLimited, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.code, statusFor(tc.err), tc.err.Error())
	}
}
