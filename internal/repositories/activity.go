package repositories

import (
	"context"

	"github.com/jackc/pgtype"

	"github.com/zkreputation/verification-node/internal/core/domain"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/db"
)

type activity struct {
	conn db.Storage
}

// NewActivity returns a postgres backed activity feed repository
func NewActivity(conn db.Storage) ports.ActivityRepository {
	return &activity{conn: conn}
}

func (r *activity) Save(ctx context.Context, a *domain.Activity) error {
	sql := `INSERT INTO activities (id, wallet_address, type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.conn.Pgx.Exec(ctx, sql, a.ID, domain.NormalizeWallet(a.WalletAddress), string(a.Type), a.Description, jsonb(a.Metadata), a.CreatedAt)
	return storeError(err)
}

func (r *activity) GetByWallet(ctx context.Context, wallet string) ([]domain.Activity, error) {
	sql := `SELECT id, wallet_address, type, description, metadata, created_at
		FROM activities WHERE wallet_address = $1 ORDER BY created_at DESC`
	rows, err := r.conn.Pgx.Query(ctx, sql, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a        domain.Activity
			typ      string
			metadata pgtype.JSONB
		)
		if err := rows.Scan(&a.ID, &a.WalletAddress, &typ, &a.Description, &metadata, &a.CreatedAt); err != nil {
			return nil, storeError(err)
		}
		a.Type = domain.ActivityType(typ)
		a.Metadata = jsonbBytes(metadata)
		activities = append(activities, a)
	}
	return activities, storeError(rows.Err())
}
