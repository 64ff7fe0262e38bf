package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, order_number, customer_id, subtotal, delivery_fee, discount, final_amount,
	payment_method, payment_status, delivery_address, status, assigned_partner_id,
	requires_confirmation, confirmation_reason, confirmed_at, confirmed_by,
	assigned_at, picked_up_at, delivered_at, cancelled_at, cancellation_reason,
	rating, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order   domain.Order
		address []byte
		rating  []byte
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID,
		&order.Subtotal, &order.DeliveryFee, &order.Discount, &order.FinalAmount,
		&order.PaymentMethod, &order.PaymentStatus, &address, &order.Status, &order.AssignedPartnerID,
		&order.RequiresConfirmation, &order.ConfirmationReason, &order.ConfirmedAt, &order.ConfirmedBy,
		&order.AssignedAt, &order.PickedUpAt, &order.DeliveredAt, &order.CancelledAt, &order.CancellationReason,
		&rating, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &order.DeliveryAddress); err != nil {
		return nil, fmt.Errorf("decode delivery address: %w", err)
	}
	if len(rating) > 0 {
		order.Rating = &domain.Rating{}
		if err := json.Unmarshal(rating, order.Rating); err != nil {
			return nil, fmt.Errorf("decode rating: %w", err)
		}
	}
	order.Items = []domain.OrderItem{}

	return &order, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.DeliveryAddress)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, subtotal, delivery_fee, discount, final_amount,
			payment_method, payment_status, delivery_address, status,
			requires_confirmation, confirmation_reason, confirmed_at, confirmed_by,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`, order.ID, order.OrderNumber, order.CustomerID,
		order.Subtotal, order.DeliveryFee, order.Discount, order.FinalAmount,
		order.PaymentMethod, order.PaymentStatus, string(address), order.Status,
		order.RequiresConfirmation, order.ConfirmationReason, order.ConfirmedAt, order.ConfirmedBy,
		order.Version, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, i, item.ProductID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if filter.PartnerID != "" {
		where = append(where, "assigned_partner_id = "+arg(filter.PartnerID))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(pq.Array(statusStrings(filter.Statuses)))+")")
	}
	if filter.UnassignedOnly {
		where = append(where, "assigned_partner_id IS NULL")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) CompareAndUpdate(ctx context.Context, order *domain.Order) (bool, error) {
	var rating any
	if order.Rating != nil {
		data, err := json.Marshal(order.Rating)
		if err != nil {
			return false, err
		}
		rating = string(data)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $3,
			assigned_partner_id = $4,
			requires_confirmation = $5,
			confirmation_reason = $6,
			payment_status = $7,
			confirmed_at = $8,
			confirmed_by = $9,
			assigned_at = $10,
			picked_up_at = $11,
			delivered_at = $12,
			cancelled_at = $13,
			cancellation_reason = $14,
			rating = $15,
			subtotal = $16,
			delivery_fee = $17,
			discount = $18,
			final_amount = $19,
			updated_at = $20,
			version = version + 1
		WHERE id = $1 AND version = $2
	`, order.ID, order.Version,
		order.Status, order.AssignedPartnerID, order.RequiresConfirmation, order.ConfirmationReason,
		order.PaymentStatus, order.ConfirmedAt, order.ConfirmedBy, order.AssignedAt, order.PickedUpAt,
		order.DeliveredAt, order.CancelledAt, order.CancellationReason, rating,
		order.Subtotal, order.DeliveryFee, order.Discount, order.FinalAmount, order.UpdatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	order.Version++
	return true, nil
}

func (r *OrderRepository) ClaimUnassigned(ctx context.Context, orderID, partnerID string, at time.Time) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			assigned_partner_id = $2,
			status = $3,
			assigned_at = $4,
			updated_at = $4,
			version = version + 1
		WHERE id = $1 AND assigned_partner_id IS NULL AND status = $5
	`, orderID, partnerID, domain.OrderStatusPreparing, at, domain.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, orderID)
}

func (r *OrderRepository) CountByPartner(ctx context.Context, partnerID string, statuses []domain.OrderStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE assigned_partner_id = $1 AND status = ANY($2)
	`, partnerID, pq.Array(statusStrings(statuses))).Scan(&n)
	return n, err
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
