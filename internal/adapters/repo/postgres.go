package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

// ErrRecordNotFound возвращается если запись о публикации не найдена.
var ErrRecordNotFound = errors.New("запись о публикации не найдена")

// Postgres реализует domain.PostingRecordRepo на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.PostingRecordRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// CreateRecord сохраняет новую запись о публикации.
func (p *Postgres) CreateRecord(ctx context.Context, record domain.PostingRecord) (domain.PostingRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	segments, err := json.Marshal(record.Segments)
	if err != nil {
		return domain.PostingRecord{}, fmt.Errorf("сериализация сегментов: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO posting_records (id, segments, status, format, topic, style, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, record.ID, segments, record.Status, record.Format, record.Tags.Topic, record.Tags.Style, record.CreatedAt, record.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "posting_record_insert", "posting_records", start, err)
	if err != nil {
		return domain.PostingRecord{}, fmt.Errorf("сохранение записи: %w", err)
	}
	return record, nil
}

// UpdateStatus переводит запись в новый статус жизненного цикла.
func (p *Postgres) UpdateStatus(ctx context.Context, recordID string, status domain.PostingStatus) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posting_records SET status = $2, updated_at = now() WHERE id = $1
`, recordID, status)
	metrics.ObserveNetworkRequest("postgres", "posting_record_status", "posting_records", start, err)
	if err != nil {
		return fmt.Errorf("обновление статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveResult сохраняет итог публикации: опубликованные id и текст ошибки.
func (p *Postgres) SaveResult(ctx context.Context, recordID string, result domain.ThreadPostResult) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tweetIDs, err := json.Marshal(result.TweetIDs)
	if err != nil {
		return fmt.Errorf("сериализация tweet id: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posting_records SET tweet_ids = $2, error = $3, updated_at = now() WHERE id = $1
`, recordID, tweetIDs, result.Error)
	metrics.ObserveNetworkRequest("postgres", "posting_record_result", "posting_records", start, err)
	if err != nil {
		return fmt.Errorf("сохранение результата: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GetRecord возвращает запись по идентификатору.
func (p *Postgres) GetRecord(ctx context.Context, recordID string) (domain.PostingRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, segments, status, format, topic, style, tweet_ids, error, created_at, updated_at
FROM posting_records WHERE id = $1
`, recordID)
	record, err := scanRecord(row)
	metrics.ObserveNetworkRequest("postgres", "posting_record_get", "posting_records", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PostingRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return domain.PostingRecord{}, fmt.Errorf("чтение записи: %w", err)
	}
	return record, nil
}

// ListRecent возвращает последние записи о публикациях.
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]domain.PostingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, segments, status, format, topic, style, tweet_ids, error, created_at, updated_at
FROM posting_records ORDER BY created_at DESC LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "posting_record_list", "posting_records", start, err)
	if err != nil {
		return nil, fmt.Errorf("список записей: %w", err)
	}
	defer rows.Close()

	var records []domain.PostingRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение записи: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.PostingRecord, error) {
	var (
		record   domain.PostingRecord
		segments []byte
		tweetIDs []byte
		errText  *string
	)
	if err := row.Scan(&record.ID, &segments, &record.Status, &record.Format, &record.Tags.Topic, &record.Tags.Style, &tweetIDs, &errText, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return domain.PostingRecord{}, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &record.Segments); err != nil {
			return domain.PostingRecord{}, fmt.Errorf("разбор сегментов: %w", err)
		}
	}
	if len(tweetIDs) > 0 {
		if err := json.Unmarshal(tweetIDs, &record.TweetIDs); err != nil {
			return domain.PostingRecord{}, fmt.Errorf("разбор tweet id: %w", err)
		}
	}
	if errText != nil {
		record.Error = *errText
	}
	return record, nil
}
