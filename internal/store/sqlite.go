package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"StarsAutoFill/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

// orderRow is the bun mapping of models.Order for the embedded SQLite store.
type orderRow struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID           string    `bun:"order_id,pk"`
	StarsAmount       int64     `bun:"stars_amount,notnull"`
	BuyerHandle       string    `bun:"buyer_handle,notnull"`
	ChatID            int64     `bun:"chat_id,notnull"`
	HubInstance       string    `bun:"hub_instance,notnull"`
	TelegramUsername  string    `bun:"telegram_username,nullzero"`
	RecipientID       *string   `bun:"recipient_id"`
	Status            string    `bun:"status,notnull"`
	Error             *string   `bun:"error"`
	FragmentRequestID *string   `bun:"fragment_request_id"`
	TonTransactionID  *string   `bun:"ton_transaction_id"`
	RetriesLeft       int       `bun:"retries_left,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// SQLite is the embedded order store. The service runs on a local database
// file when no Postgres DSN is configured; tests run it in memory.
type SQLite struct {
	DB *bun.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLite{DB: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.DB.NewCreateTable().Model((*orderRow)(nil)).IfNotExists().Exec(context.Background())
	return err
}

func (s *SQLite) Close() error {
	return s.DB.Close()
}

func toRow(order *models.Order) *orderRow {
	var errKind *string
	if order.Error != nil {
		v := string(*order.Error)
		errKind = &v
	}
	now := time.Now().UTC()
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &orderRow{
		OrderID:           order.OrderID,
		StarsAmount:       order.StarsAmount,
		BuyerHandle:       order.BuyerHandle,
		ChatID:            order.ChatID,
		HubInstance:       order.HubInstance,
		TelegramUsername:  order.TelegramUsername,
		RecipientID:       order.RecipientID,
		Status:            string(order.Status),
		Error:             errKind,
		FragmentRequestID: order.FragmentRequestID,
		TonTransactionID:  order.TonTransactionID,
		RetriesLeft:       order.RetriesLeft,
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	}
}

func fromRow(row *orderRow) *models.Order {
	order := &models.Order{
		OrderID:           row.OrderID,
		StarsAmount:       row.StarsAmount,
		BuyerHandle:       row.BuyerHandle,
		ChatID:            row.ChatID,
		HubInstance:       row.HubInstance,
		TelegramUsername:  row.TelegramUsername,
		RecipientID:       row.RecipientID,
		Status:            models.OrderStatus(row.Status),
		FragmentRequestID: row.FragmentRequestID,
		TonTransactionID:  row.TonTransactionID,
		RetriesLeft:       row.RetriesLeft,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.Error != nil {
		kind := models.ErrorKind(*row.Error)
		order.Error = &kind
	}
	return order
}

func upsertSQLite(ctx context.Context, idb bun.IDB, order *models.Order) error {
	row := toRow(order)
	_, err := idb.NewInsert().
		Model(row).
		On("CONFLICT (order_id) DO UPDATE").
		Set("stars_amount = EXCLUDED.stars_amount").
		Set("buyer_handle = EXCLUDED.buyer_handle").
		Set("chat_id = EXCLUDED.chat_id").
		Set("hub_instance = EXCLUDED.hub_instance").
		Set("telegram_username = EXCLUDED.telegram_username").
		Set("recipient_id = EXCLUDED.recipient_id").
		Set("status = EXCLUDED.status").
		Set("error = EXCLUDED.error").
		Set("fragment_request_id = EXCLUDED.fragment_request_id").
		Set("ton_transaction_id = EXCLUDED.ton_transaction_id").
		Set("retries_left = EXCLUDED.retries_left").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *SQLite) AddOrUpdate(ctx context.Context, order *models.Order) error {
	return upsertSQLite(ctx, s.DB, order)
}

func (s *SQLite) AddOrUpdateBatch(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, order := range orders {
			if err := upsertSQLite(ctx, tx, order); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var row orderRow
	err := s.DB.NewSelect().
		Model(&row).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromRow(&row), nil
}

func (s *SQLite) GetMany(ctx context.Context, orderIDs []string, statuses ...models.OrderStatus) (map[string]*models.Order, error) {
	q := s.DB.NewSelect().Model((*orderRow)(nil))
	if len(orderIDs) > 0 {
		q = q.Where("order_id IN (?)", bun.In(orderIDs))
	}
	if len(statuses) > 0 {
		vals := make([]string, 0, len(statuses))
		for _, st := range statuses {
			vals = append(vals, string(st))
		}
		q = q.Where("status IN (?)", bun.In(vals))
	}

	var rows []orderRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rowsToMap(rows), nil
}

func (s *SQLite) GetReady(ctx context.Context, instanceID string, limit int) (map[string]*models.Order, error) {
	if limit <= 0 {
		limit = DefaultReadyLimit
	}
	var rows []orderRow
	err := s.DB.NewSelect().
		Model((*orderRow)(nil)).
		Where("(status = ? OR (status = ? AND retries_left > 0))", string(models.OrderReady), string(models.OrderError)).
		Where("hub_instance = ?", instanceID).
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rowsToMap(rows), nil
}

func rowsToMap(rows []orderRow) map[string]*models.Order {
	out := make(map[string]*models.Order, len(rows))
	for i := range rows {
		order := fromRow(&rows[i])
		out[order.OrderID] = order
	}
	return out
}
