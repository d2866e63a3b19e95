package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/cart"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/lib/pq"
)

// PostgresStore implements order.Repository, order.GrantRepository and cart.Repository.
// Every call is bounded by the configured timeout.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

var (
	_ order.Repository      = (*PostgresStore)(nil)
	_ order.GrantRepository = (*PostgresStore)(nil)
	_ cart.Repository       = (*PostgresStore)(nil)
)

// ConnectPostgres opens and pings a PostgreSQL connection pool
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Short-lived request/response workload; keep the pool small.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

func (s *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Ping checks connectivity for health probes
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Order operations

func (s *PostgresStore) InsertOrder(ctx context.Context, o *order.Order) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, customer_email, currency, amount_cents, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $7)
	`, o.ID, o.UserID, o.CustomerEmail, o.Currency, o.AmountCents, string(o.Status), o.CreatedAt)
	return err
}

// InsertOrderLines writes all lines in one transaction; either all land or none do.
func (s *PostgresStore) InsertOrderLines(ctx context.Context, orderID string, lines []order.Line) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_lines (order_id, item_id, title, unit_price_cents, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare order line insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range lines {
		if _, err := stmt.ExecContext(ctx, orderID, line.ItemID, line.Title, line.UnitPriceCents, line.Quantity); err != nil {
			return fmt.Errorf("insert order line %s: %w", line.ItemID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, orderID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	return err
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		o         order.Order
		status    string
		email     sql.NullString
		gatewayID sql.NullString
		paidAt    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, customer_email, currency, amount_cents, status, gateway_checkout_id, created_at, paid_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&o.ID, &o.UserID, &email, &o.Currency, &o.AmountCents, &status, &gatewayID, &o.CreatedAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		if isInvalidUUID(err) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order: %w", err)
	}

	o.Status = order.Status(status)
	o.CustomerEmail = email.String
	o.GatewayCheckoutID = gatewayID.String
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (s *PostgresStore) GetOrderLines(ctx context.Context, orderID string) ([]order.Line, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, title, unit_price_cents, quantity
		FROM order_lines WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []order.Line
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ItemID, &l.Title, &l.UnitPriceCents, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *PostgresStore) UpdateStatusIfPending(ctx context.Context, orderID string, status order.Status, at time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var paidAt any
	if status == order.StatusPaid {
		paidAt = at
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, orderID, string(status), paidAt, at)
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *PostgresStore) SetGatewayCheckoutID(ctx context.Context, orderID, checkoutID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET gateway_checkout_id = $2, updated_at = now() WHERE id = $1
	`, orderID, checkoutID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (s *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM orders WHERE status = 'pending' AND created_at < $1 ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Grant operations

func (s *PostgresStore) InsertGrantIfAbsent(ctx context.Context, g order.Grant) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	grantedAt := g.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_grants (user_id, item_id, order_id, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, g.UserID, g.ItemID, g.OrderID, grantedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Cart operations

func (s *PostgresStore) GetCartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, quantity FROM cart_lines WHERE user_id = $1 ORDER BY added_at, item_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ItemID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *PostgresStore) GetCatalogItems(ctx context.Context, ids []string) (map[string]cart.CatalogItem, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	items := make(map[string]cart.CatalogItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, price_cents FROM catalog_items WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item cart.CatalogItem
		if err := rows.Scan(&item.ID, &item.Title, &item.PriceCents); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items[item.ID] = item
	}
	return items, rows.Err()
}

func (s *PostgresStore) ClearCart(ctx context.Context, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID)
	return err
}

// isInvalidUUID reports a malformed order id (22P02), which we treat as "no such order".
func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
