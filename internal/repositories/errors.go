package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

var (
	// ErrStoreUnavailable is returned when the database cannot be reached or the call timed out
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrSessionNotFound is returned when a verification session does not exist
	ErrSessionNotFound = errors.New("verification session not found")
	// ErrSessionFinalized is returned when an update targets a session already in a different terminal status
	ErrSessionFinalized = errors.New("verification session already finalized")
	// ErrUserNotFound is returned when there is no user for a wallet
	ErrUserNotFound = errors.New("user not found")
	// ErrSelfVerificationNotFound is returned when a wallet has no verified self verification
	ErrSelfVerificationNotFound = errors.New("self verification not found")
)

// storeError classifies err. Server side errors (constraint violations, syntax) are returned
// as they are, anything else means the store could not serve the request.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func jsonb(raw []byte) pgtype.JSONB {
	if len(raw) == 0 {
		return pgtype.JSONB{Status: pgtype.Null}
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}
}

func jsonbBytes(j pgtype.JSONB) []byte {
	if j.Status != pgtype.Present {
		return nil
	}
	return j.Bytes
}
