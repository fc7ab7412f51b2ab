package domain

import "time"

// PostingStatus описывает жизненный цикл записи о публикации.
type PostingStatus string

const (
	// PostingStatusPending — запись создана, публикация ещё не началась.
	PostingStatusPending PostingStatus = "pending"
	// PostingStatusPosting — идёт отправка сегментов.
	PostingStatusPosting PostingStatus = "posting"
	// PostingStatusCompleted — все сегменты опубликованы.
	PostingStatusCompleted PostingStatus = "completed"
	// PostingStatusFailed — публикация завершилась ошибкой или частично.
	PostingStatusFailed PostingStatus = "failed"
)

// PostFormat классифицирует публикацию: одиночный пост или тред.
type PostFormat string

const (
	// PostFormatSingle — одиночный пост из одного сегмента.
	PostFormatSingle PostFormat = "single"
	// PostFormatThread — тред из цепочки ответов.
	PostFormatThread PostFormat = "thread"
)

// FormatFor возвращает формат публикации по числу сегментов.
func FormatFor(segmentCount int) PostFormat {
	if segmentCount > 1 {
		return PostFormatThread
	}
	return PostFormatSingle
}

// ContentTags переносит метки генератора контента; для ядра публикации они непрозрачны.
type ContentTags struct {
	Topic string
	Style string
}

// PostingRecord — запись об одной попытке публикации.
type PostingRecord struct {
	ID        string
	Segments  []string
	Status    PostingStatus
	Format    PostFormat
	Tags      ContentTags
	TweetIDs  []string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SegmentResult — итог отправки одного сегмента. После создания не изменяется.
type SegmentResult struct {
	TweetID string
	Success bool
	Err     error
}

// PostMetadata описывает публикацию для даунстрим-потребителей.
type PostMetadata struct {
	PostType       PostFormat
	SegmentCount   int
	PostedAt       time.Time
	ContentPreview string
}

// ThreadPostResult — итоговый контракт оркестратора. TweetIDs всегда непрерывный
// префикс запрошенных сегментов в исходном порядке.
type ThreadPostResult struct {
	Success  bool
	TweetIDs []string
	Error    string
	Metadata PostMetadata
}

// PostedCount возвращает число фактически опубликованных сегментов.
func (r ThreadPostResult) PostedCount() int {
	return len(r.TweetIDs)
}
