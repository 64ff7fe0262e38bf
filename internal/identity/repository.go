package identity

import (
	"context"
	"database/sql"
)

type DirectoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ListByRole returns ids in signup order.
func (r *DirectoryRepository) ListByRole(ctx context.Context, role Role) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM users
		WHERE role = $1
		ORDER BY created_at, id
	`, role)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *DirectoryRepository) ListDeliveryPartners(ctx context.Context) ([]string, error) {
	return r.ListByRole(ctx, RoleDeliveryPartner)
}
