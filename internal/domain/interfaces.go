package domain

import (
	"context"
	"time"
)

// BrowserSession — открытая сессия автоматизации браузера. Сессией владеет
// один проход публикации; параллельные сабмиты в одну сессию запрещены.
type BrowserSession interface {
	// SubmitPost публикует текст как новый пост верхнего уровня и возвращает его id.
	SubmitPost(ctx context.Context, text string) (string, error)
	// SubmitReply публикует текст как ответ на пост parentID и возвращает id ответа.
	SubmitReply(ctx context.Context, text, parentID string) (string, error)
	// Close освобождает сессию. Вызывается на всех путях выхода.
	Close() error
}

// SessionProvider выдаёт сессию автоматизации. Ошибка класса ErrPathExhausted
// на первом сегменте разрешает эскалацию.
type SessionProvider interface {
	Acquire(ctx context.Context) (BrowserSession, error)
}

// EmergencyPublisher — аварийный путь с урезанными возможностями: один пост
// верхнего уровня, без жизненного цикла сессии.
type EmergencyPublisher interface {
	SubmitPost(ctx context.Context, text string) (string, error)
}

// PostingService — единственная точка входа ядра публикации.
type PostingService interface {
	// Post всегда возвращает результат; ожидаемые сбои выражаются полями
	// Success и Error, а не ошибкой.
	Post(ctx context.Context, segments []string, tags ContentTags) ThreadPostResult
}

// PostingRecordRepo управляет записями о публикациях.
type PostingRecordRepo interface {
	CreateRecord(ctx context.Context, record PostingRecord) (PostingRecord, error)
	UpdateStatus(ctx context.Context, recordID string, status PostingStatus) error
	SaveResult(ctx context.Context, recordID string, result ThreadPostResult) error
	GetRecord(ctx context.Context, recordID string) (PostingRecord, error)
	ListRecent(ctx context.Context, limit int) ([]PostingRecord, error)
}

// Cache используется для простых TTL-хранилищ: троттлинг стартов тредов
// и память недавних хуков.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
