package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/log"
)

// CreateSession is the controller to create a verification session
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if !s.limiter.Allow(req.WalletAddress) {
		writeError(ctx, w, ErrRateLimited)
		return
	}
	vs, err := s.sessions.CreateSession(ctx, req.WalletAddress, req.Config)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, sessionResponse(vs))
}

// GetSession returns a session by id
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vs, err := s.sessions.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, sessionResponse(vs))
}

// UpdateSessionStatus moves a session forward
func (s *Server) UpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateSessionStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	update := &domain.SessionUpdate{QRCodeData: req.QRCodeData, UniversalLink: req.UniversalLink}
	if err := s.sessions.UpdateSessionStatus(ctx, chi.URLParam(r, "id"), domain.SessionStatus(req.Status), update); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelSession cancels a session
func (s *Server) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.sessions.CancelSession(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActiveSessions returns the active sessions of a wallet, newest first
func (s *Server) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := s.sessions.GetActiveSessionsForWallet(ctx, chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, sessionsResponse(sessions))
}

// GetSessionStats returns the session counters
func (s *Server) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.sessions.GetSessionStats(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, stats)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		log.Debug(r.Context(), "invalid request body", "err", err)
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
