package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/zkreputation/verification-node/internal/core/services"
	"github.com/zkreputation/verification-node/internal/gateways"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/repositories"
)

var (
	// ErrListenerDisabled is returned by the listener endpoints when the node runs without a listener
	ErrListenerDisabled = errors.New("contract listener is disabled")
	// ErrRateLimited is returned when a wallet creates sessions too fast
	ErrRateLimited = errors.New("too many sessions requested, try again later")

	errBadRequest = errors.New("bad request")
)

// statusFor maps service errors into http status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrStatusReserved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidWallet),
		errors.Is(err, services.ErrInvalidSessionConfig),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, repositories.ErrStoreUnavailable),
		errors.Is(err, gateways.ErrChainUnavailable),
		errors.Is(err, ErrListenerDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError logs err and writes it as a GenericErrorMessage. Internal errors are not disclosed.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(ctx, "request failed", "err", err)
		msg = http.StatusText(status)
	} else {
		log.Debug(ctx, "request rejected", "err", err, "status", status)
	}
	writeJSON(ctx, w, status, GenericErrorMessage{Message: msg})
}
