package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, orderID string) (*domain.DeliveryTracking, error) {
	var (
		t       domain.DeliveryTracking
		history []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, partner_id, current_lat, current_lon, history, status,
			distance_km, estimated_arrival, version, created_at, updated_at
		FROM delivery_tracking
		WHERE order_id = $1
	`, orderID).Scan(
		&t.OrderID, &t.PartnerID, &t.CurrentLocation.Lat, &t.CurrentLocation.Lon, &history, &t.Status,
		&t.DistanceKm, &t.EstimatedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("decode location history: %w", err)
	}

	return &t, nil
}

func (r *Repository) Save(ctx context.Context, t *domain.DeliveryTracking) (bool, error) {
	history, err := json.Marshal(t.History)
	if err != nil {
		return false, err
	}

	var res sql.Result
	if t.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO delivery_tracking (
				order_id, partner_id, current_lat, current_lon, history, status,
				distance_km, estimated_arrival, version, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
			ON CONFLICT (order_id) DO NOTHING
		`, t.OrderID, t.PartnerID, t.CurrentLocation.Lat, t.CurrentLocation.Lon, string(history), t.Status,
			t.DistanceKm, t.EstimatedAt, t.CreatedAt, t.UpdatedAt)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE delivery_tracking SET
				partner_id = $2,
				current_lat = $3,
				current_lon = $4,
				history = $5,
				status = $6,
				distance_km = $7,
				estimated_arrival = $8,
				updated_at = $9,
				version = version + 1
			WHERE order_id = $1 AND version = $10
		`, t.OrderID, t.PartnerID, t.CurrentLocation.Lat, t.CurrentLocation.Lon, string(history), t.Status,
			t.DistanceKm, t.EstimatedAt, t.UpdatedAt, t.Version)
	}
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	t.Version++
	return true, nil
}
