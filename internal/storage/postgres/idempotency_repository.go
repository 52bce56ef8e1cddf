package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// TTL по умолчанию для нового idempotency-ключа.
const idempotencyDefaultTTL = 24 * time.Hour

const (
	idempotencyInsertSQL = `
		INSERT INTO idempotency_keys
			(key, request_hash, order_id, fail_reason, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, '', '', $3, $4, $5, $5)`

	idempotencySelectSQL = `
		SELECT key, request_hash, order_id, fail_reason, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1`

	idempotencyMarkSQL = `
		UPDATE idempotency_keys
		SET order_id = $2, fail_reason = $3, status = $4, updated_at = $5
		WHERE key = $1`

	idempotencyDeleteBatchSQL = `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
		)`

	idempotencyDeleteAllSQL = `
		DELETE FROM idempotency_keys
		WHERE ttl_at <= $1`
)

// idempotencyRepository хранит idempotency-ключи запросов создания заказа.
type idempotencyRepository struct {
	db *sql.DB
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)

// NewIdempotencyRepository возвращает репозиторий idempotency-ключей поверх PostgreSQL.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

// CreateProcessing регистрирует ключ в статусе processing. При конфликте
// по ключу возвращает существующую запись: с ErrIdempotencyHashMismatch,
// если тело запроса отличается, иначе с ErrIdempotencyKeyAlreadyExists.
func (r *idempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(idempotencyDefaultTTL)
	}

	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, idempotencyInsertSQL,
		key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now)
	if err == nil {
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}
	if !isUniqueViolation(err) {
		return domain.IdempotencyRecord{}, fmt.Errorf("insert idempotency key: %w", err)
	}

	existing, getErr := r.Get(key)
	if getErr != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := opCtx()
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		statusRaw string
	)
	err := r.db.QueryRowContext(ctx, idempotencySelectSQL, key).Scan(
		&record.Key, &record.RequestHash, &record.OrderID, &record.FailReason,
		&statusRaw, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key: %w", err)
	}

	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q for key %s", statusRaw, key)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(key, orderID string) error {
	return r.transition(key, domain.IdempotencyStatusDone, orderID, "")
}

func (r *idempotencyRepository) MarkFailed(key, reason string) error {
	return r.transition(key, domain.IdempotencyStatusFailed, "", reason)
}

// DeleteExpired удаляет ключи с истёкшим TTL. При limit > 0 удаляются
// самые старые по ttl_at, не больше limit за вызов.
func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := opCtx()
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, idempotencyDeleteBatchSQL, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, idempotencyDeleteAllSQL, before)
	}
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency affected rows: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) transition(key string, status domain.IdempotencyStatus, orderID, reason string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, idempotencyMarkSQL,
		key, orderID, reason, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark idempotency key %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}
