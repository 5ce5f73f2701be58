package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/db"
)

type user struct {
	conn db.Storage
}

// NewUser returns a postgres backed user repository
func NewUser(conn db.Storage) ports.UserRepository {
	return &user{conn: conn}
}

// Upsert creates the user with the baseline reputation or overwrites its verification fields
func (r *user) Upsert(ctx context.Context, u *domain.User) error {
	sql := `INSERT INTO users (wallet_address, self_verified, verification_level, voting_eligible, nationality, gender, age,
			reputation_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (wallet_address) DO
		UPDATE SET self_verified = $2, verification_level = $3, voting_eligible = $4, nationality = $5, gender = $6,
			age = $7, updated_at = $10`
	_, err := r.conn.Pgx.Exec(ctx, sql,
		domain.NormalizeWallet(u.WalletAddress),
		u.SelfVerified,
		u.VerificationLevel,
		u.VotingEligible,
		u.Nationality,
		u.Gender,
		u.Age,
		u.ReputationScore,
		u.CreatedAt,
		u.UpdatedAt,
	)
	return storeError(err)
}

// GetByWallet returns a user by wallet
func (r *user) GetByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	sql := `SELECT wallet_address, self_verified, verification_level, voting_eligible, nationality, gender, age,
			reputation_score, created_at, updated_at
		FROM users WHERE wallet_address = $1`
	var u domain.User
	err := r.conn.Pgx.QueryRow(ctx, sql, domain.NormalizeWallet(wallet)).Scan(
		&u.WalletAddress,
		&u.SelfVerified,
		&u.VerificationLevel,
		&u.VotingEligible,
		&u.Nationality,
		&u.Gender,
		&u.Age,
		&u.ReputationScore,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}
	return &u, nil
}

type selfVerification struct {
	conn db.Storage
}

// NewSelfVerification returns a postgres backed self verification audit repository
func NewSelfVerification(conn db.Storage) ports.SelfVerificationRepository {
	return &selfVerification{conn: conn}
}

func (r *selfVerification) Save(ctx context.Context, sv *domain.SelfVerification) error {
	sql := `INSERT INTO self_verifications (id, wallet_address, nationality, gender, age, tx_hash, block_number,
			verified_at, status, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.conn.Pgx.Exec(ctx, sql,
		sv.ID,
		domain.NormalizeWallet(sv.WalletAddress),
		sv.Nationality,
		sv.Gender,
		sv.Age,
		sv.TxHash,
		int64(sv.BlockNumber),
		sv.VerifiedAt,
		string(sv.Status),
		sv.RevokedAt,
		sv.CreatedAt,
	)
	return storeError(err)
}

// RevokeLatest marks the newest verified record of wallet as revoked
func (r *selfVerification) RevokeLatest(ctx context.Context, wallet string, revokedAt time.Time) error {
	sql := `UPDATE self_verifications SET status = $2, revoked_at = $3
		WHERE id = (
			SELECT id FROM self_verifications
			WHERE wallet_address = $1 AND status = $4
			ORDER BY created_at DESC
			LIMIT 1
		)`
	tag, err := r.conn.Pgx.Exec(ctx, sql,
		domain.NormalizeWallet(wallet),
		string(domain.SelfVerificationRevoked),
		revokedAt,
		string(domain.SelfVerificationVerified),
	)
	if err != nil {
		return storeError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSelfVerificationNotFound
	}
	return nil
}

func (r *selfVerification) GetByWallet(ctx context.Context, wallet string) ([]domain.SelfVerification, error) {
	sql := `SELECT id, wallet_address, nationality, gender, age, tx_hash, block_number, verified_at, status, revoked_at, created_at
		FROM self_verifications WHERE wallet_address = $1 ORDER BY created_at DESC`
	rows, err := r.conn.Pgx.Query(ctx, sql, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	records := make([]domain.SelfVerification, 0)
	for rows.Next() {
		var (
			sv          domain.SelfVerification
			blockNumber int64
			status      string
		)
		if err := rows.Scan(&sv.ID, &sv.WalletAddress, &sv.Nationality, &sv.Gender, &sv.Age, &sv.TxHash, &blockNumber,
			&sv.VerifiedAt, &status, &sv.RevokedAt, &sv.CreatedAt); err != nil {
			return nil, storeError(err)
		}
		sv.BlockNumber = uint64(blockNumber)
		sv.Status = domain.SelfVerificationStatus(status)
		records = append(records, sv)
	}
	return records, storeError(rows.Err())
}
