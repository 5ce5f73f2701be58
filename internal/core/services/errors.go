package services

import (
	"errors"

	"github.com/zkreputation/verification-node/internal/repositories"
)

var (
	// ErrSessionNotFound - the verification session does not exist
	ErrSessionNotFound = errors.New("verification session not found")
	// ErrInvalidStatusTransition - the session cannot move to the requested status
	ErrInvalidStatusTransition = errors.New("invalid session status transition")
	// ErrStatusReserved - verified is only reached through an on-chain verification
	ErrStatusReserved = errors.New("sessions are verified by on-chain events only")
	// ErrInvalidStatus - unknown session status
	ErrInvalidStatus = errors.New("unknown session status")
	// ErrInvalidWallet - the wallet is not a hex address
	ErrInvalidWallet = errors.New("invalid wallet address")
	// ErrInvalidSessionConfig - the session config is not a JSON document
	ErrInvalidSessionConfig = errors.New("session config must be valid JSON")
	// ErrUnknownEventKind - the reconciler got an event it cannot apply
	ErrUnknownEventKind = errors.New("unknown verification event kind")
)

// sessionError translates repository errors into service errors
func sessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repositories.ErrSessionFinalized):
		return ErrInvalidStatusTransition
	}
	return err
}
