package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/sharedintent/internal/domain"
)

const deliverySchema = `
	CREATE TABLE IF NOT EXISTS intent_deliveries (
		id              uuid PRIMARY KEY,
		service         text        NOT NULL,
		conversation_id text,
		user_id         text,
		status          text        NOT NULL,
		responses       integer     NOT NULL DEFAULT 0,
		error           text,
		created_at      timestamptz NOT NULL
	);
	CREATE INDEX IF NOT EXISTS intent_deliveries_service_created_idx
		ON intent_deliveries (service, created_at DESC);
`

// DeliveryFilter — параметры выборки записей аудита.
type DeliveryFilter struct {
	Service string
	Status  domain.DeliveryStatus
	Limit   int
}

// DeliveryRepo — репозиторий аудита обработанных сообщений.
type DeliveryRepo struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepo создаёт новый DeliveryRepo.
func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// EnsureSchema создаёт таблицу аудита, если её нет.
func (r *DeliveryRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, deliverySchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create сохраняет запись аудита.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	query := `
		INSERT INTO intent_deliveries (id, service, conversation_id, user_id, status, responses, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Service,
		nullString(d.ConversationID),
		nullString(d.UserID),
		d.Status,
		d.Responses,
		nullString(d.Error),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// List возвращает последние записи аудита.
func (r *DeliveryRepo) List(ctx context.Context, filter DeliveryFilter) ([]domain.Delivery, error) {
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidFilter)
	}

	query := `
		SELECT id, service, conversation_id, user_id, status, responses, error, created_at
		FROM intent_deliveries
		WHERE ($1::text IS NULL OR service = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Service),
		nullString(string(filter.Status)),
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}

	deliveries, err := pgx.CollectRows(rows, scanDelivery)
	if err != nil {
		return nil, fmt.Errorf("scan deliveries: %w", err)
	}
	return deliveries, nil
}

func scanDelivery(row pgx.CollectableRow) (domain.Delivery, error) {
	var (
		d                              domain.Delivery
		conversationID, userID, errMsg *string
	)

	err := row.Scan(
		&d.ID,
		&d.Service,
		&conversationID,
		&userID,
		&d.Status,
		&d.Responses,
		&errMsg,
		&d.CreatedAt,
	)
	if err != nil {
		return d, err
	}

	d.ConversationID = deref(conversationID)
	d.UserID = deref(userID)
	d.Error = deref(errMsg)
	return d, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
