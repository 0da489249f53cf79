package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"StarsAutoFill/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `order_id, stars_amount, buyer_handle, chat_id, hub_instance,
	telegram_username, recipient_id, status, error, fragment_request_id,
	ton_transaction_id, retries_left, created_at, updated_at`

const upsertOrderSQL = `
	INSERT INTO orders (
		order_id, stars_amount, buyer_handle, chat_id, hub_instance,
		telegram_username, recipient_id, status, error, fragment_request_id,
		ton_transaction_id, retries_left
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (order_id) DO UPDATE SET
		stars_amount=EXCLUDED.stars_amount,
		buyer_handle=EXCLUDED.buyer_handle,
		chat_id=EXCLUDED.chat_id,
		hub_instance=EXCLUDED.hub_instance,
		telegram_username=EXCLUDED.telegram_username,
		recipient_id=EXCLUDED.recipient_id,
		status=EXCLUDED.status,
		error=EXCLUDED.error,
		fragment_request_id=EXCLUDED.fragment_request_id,
		ton_transaction_id=EXCLUDED.ton_transaction_id,
		retries_left=EXCLUDED.retries_left,
		updated_at=now()
`

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

func upsertArgs(order *models.Order) []any {
	var errKind *string
	if order.Error != nil {
		s := string(*order.Error)
		errKind = &s
	}
	return []any{
		order.OrderID,
		order.StarsAmount,
		order.BuyerHandle,
		order.ChatID,
		order.HubInstance,
		order.TelegramUsername,
		order.RecipientID,
		order.Status,
		errKind,
		order.FragmentRequestID,
		order.TonTransactionID,
		order.RetriesLeft,
	}
}

func (s *Postgres) AddOrUpdate(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, upsertOrderSQL, upsertArgs(order)...)
	return err
}

// AddOrUpdateBatch upserts all orders in one transaction. Either every row
// becomes visible or none: partial batch visibility would let the scheduler
// double-process an order.
func (s *Postgres) AddOrUpdateBatch(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, order := range orders {
		if _, err := tx.Exec(ctx, upsertOrderSQL, upsertArgs(order)...); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Get(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Postgres) GetMany(ctx context.Context, orderIDs []string, statuses ...models.OrderStatus) (map[string]*models.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	var conds []string
	if len(orderIDs) > 0 {
		args = append(args, orderIDs)
		conds = append(conds, "order_id = ANY($1)")
	}
	if len(statuses) > 0 {
		vals := make([]string, 0, len(statuses))
		for _, st := range statuses {
			vals = append(vals, string(st))
		}
		args = append(args, vals)
		if len(conds) == 0 {
			conds = append(conds, "status = ANY($1)")
		} else {
			conds = append(conds, "status = ANY($2)")
		}
	}
	for i, c := range conds {
		if i == 0 {
			sql += " WHERE " + c
		} else {
			sql += " AND " + c
		}
	}

	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Postgres) GetReady(ctx context.Context, instanceID string, limit int) (map[string]*models.Order, error) {
	if limit <= 0 {
		limit = DefaultReadyLimit
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE (status='READY' OR (status='ERROR' AND retries_left > 0))
		AND hub_instance=$1
		LIMIT $2
	`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) (map[string]*models.Order, error) {
	out := make(map[string]*models.Order)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out[order.OrderID] = order
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var username sql.NullString
	var recipientID sql.NullString
	var errKind sql.NullString
	var requestID sql.NullString
	var txID sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&order.OrderID,
		&order.StarsAmount,
		&order.BuyerHandle,
		&order.ChatID,
		&order.HubInstance,
		&username,
		&recipientID,
		&order.Status,
		&errKind,
		&requestID,
		&txID,
		&order.RetriesLeft,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.TelegramUsername = username.String
	if recipientID.Valid {
		order.RecipientID = &recipientID.String
	}
	if errKind.Valid {
		kind := models.ErrorKind(errKind.String)
		order.Error = &kind
	}
	if requestID.Valid {
		order.FragmentRequestID = &requestID.String
	}
	if txID.Valid {
		order.TonTransactionID = &txID.String
	}
	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt
	return &order, nil
}
