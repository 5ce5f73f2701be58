package api

import (
	"net/http"

	"github.com/zkreputation/verification-node/internal/buildinfo"
)

// GetListener returns the contract listener status
func (s *Server) GetListener(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.listener == nil {
		writeError(ctx, w, ErrListenerDisabled)
		return
	}
	writeJSON(ctx, w, http.StatusOK, s.listenerStatus())
}

// StartListener starts polling the contract. Starting a running listener is not an error.
func (s *Server) StartListener(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.listener == nil {
		writeError(ctx, w, ErrListenerDisabled)
		return
	}
	if err := s.listener.Start(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, s.listenerStatus())
}

// StopListener stops polling. It returns once an in-flight poll is over.
func (s *Server) StopListener(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.listener == nil {
		writeError(ctx, w, ErrListenerDisabled)
		return
	}
	s.listener.Stop()
	writeJSON(ctx, w, http.StatusOK, s.listenerStatus())
}

// Status returns the reachability of every dependency
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res := StatusResponse{Status: map[string]bool{}}
	if s.health != nil {
		res.Status = s.health.Status(ctx)
	}
	if s.listener != nil {
		ls := s.listenerStatus()
		res.Listener = &ls
	}
	res.Build = buildinfo.Get()

	code := http.StatusOK
	for _, up := range res.Status {
		if !up {
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(ctx, w, code, res)
}

func (s *Server) listenerStatus() ListenerStatus {
	return ListenerStatus{
		Running:            s.listener.IsRunning(),
		LastProcessedBlock: s.listener.LastProcessedBlock(),
	}
}
