package posting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

const previewLength = 50

// threadPublisher — контракт цикла отправки сегментов; реализуется *Publisher.
type threadPublisher interface {
	PostAll(ctx context.Context, segments []string) []domain.SegmentResult
	ContinueThread(ctx context.Context, segments []string, startIndex int, replyTarget string) []domain.SegmentResult
}

// Service — оркестратор публикации: валидация, нормализация, отправка с
// эскалацией и бухгалтерия записей. Ожидаемые сбои никогда не всплывают
// ошибкой — итог всегда выражен в ThreadPostResult.
type Service struct {
	publisher  threadPublisher
	emergency  domain.EmergencyPublisher
	records    domain.PostingRecordRepo
	normalizer *Normalizer
	now        func() time.Time
	log        zerolog.Logger
}

var _ domain.PostingService = (*Service)(nil)

// NewService создаёт оркестратор. emergency может быть nil: тогда сбой первого
// сегмента сразу терминален.
func NewService(publisher threadPublisher, emergency domain.EmergencyPublisher, records domain.PostingRecordRepo, normalizer *Normalizer, logger zerolog.Logger) *Service {
	return &Service{
		publisher:  publisher,
		emergency:  emergency,
		records:    records,
		normalizer: normalizer,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger,
	}
}

// Post публикует payload как одиночный пост или тред.
func (s *Service) Post(ctx context.Context, segments []string, tags domain.ContentTags) domain.ThreadPostResult {
	metrics.IncPostRequests()
	start := s.now()

	record := domain.PostingRecord{
		ID:        uuid.NewString(),
		Segments:  segments,
		Status:    domain.PostingStatusPending,
		Format:    domain.FormatFor(len(segments)),
		Tags:      tags,
		CreatedAt: start,
	}
	record, err := s.records.CreateRecord(ctx, record)
	if err != nil {
		s.log.Error().Err(err).Msg("posting: не удалось создать запись")
	}

	oversized, err := Validate(segments)
	if err != nil {
		s.log.Warn().Err(err).Msg("posting: payload отклонён валидатором")
		return s.finish(ctx, record, segments, nil, err.Error(), start)
	}
	if len(oversized) > 0 {
		metrics.IncTruncations(len(oversized))
		s.log.Warn().Ints("segments", oversized).Msg("posting: сегменты будут усечены до лимита")
	}

	isThread := len(segments) > 1
	normalized := s.normalizer.Normalize(segments, isThread)

	if err := s.records.UpdateStatus(ctx, record.ID, domain.PostingStatusPosting); err != nil {
		s.log.Error().Err(err).Str("record", record.ID).Msg("posting: не удалось обновить статус")
	}

	results := s.publisher.PostAll(ctx, normalized)
	results = s.maybeEscalate(ctx, normalized, results)

	errText := ""
	ids := make([]string, 0, len(results))
	for _, res := range results {
		if !res.Success {
			if res.Err != nil {
				errText = res.Err.Error()
			}
			break
		}
		ids = append(ids, res.TweetID)
	}

	return s.finish(ctx, record, normalized, ids, errText, start)
}

// maybeEscalate запускает аварийный путь, если основной путь исчерпан именно
// на первом сегменте. Успешный аварийный пост становится корнем треда, и
// цикл ответов продолжается со второго сегмента.
func (s *Service) maybeEscalate(ctx context.Context, segments []string, results []domain.SegmentResult) []domain.SegmentResult {
	if len(results) == 0 || results[0].Success {
		return results
	}
	if s.emergency == nil || !domain.IsPathExhausted(results[0].Err) {
		return results
	}

	metrics.IncEscalations()
	s.log.Warn().Err(results[0].Err).Msg("posting: основной путь исчерпан, аварийная публикация")

	tweetID, err := s.emergency.SubmitPost(ctx, segments[0])
	if err != nil {
		s.log.Error().Err(err).Msg("posting: аварийный путь тоже не сработал")
		return []domain.SegmentResult{{Err: &domain.SubmissionError{Index: 0, Err: domain.ErrEscalationExhausted}}}
	}

	spliced := []domain.SegmentResult{{TweetID: tweetID, Success: true}}
	metrics.IncSegmentsPosted(1)
	if len(segments) > 1 {
		spliced = append(spliced, s.publisher.ContinueThread(ctx, segments, 1, tweetID)...)
	}
	return spliced
}

func (s *Service) finish(ctx context.Context, record domain.PostingRecord, segments []string, ids []string, errText string, start time.Time) domain.ThreadPostResult {
	success := errText == "" && len(ids) == len(segments) && len(ids) > 0
	result := domain.ThreadPostResult{
		Success:  success,
		TweetIDs: ids,
		Error:    errText,
		Metadata: domain.PostMetadata{
			PostType:       domain.FormatFor(len(segments)),
			SegmentCount:   len(segments),
			PostedAt:       s.now(),
			ContentPreview: preview(segments),
		},
	}

	status := domain.PostingStatusFailed
	if success {
		status = domain.PostingStatusCompleted
	} else {
		metrics.IncPostFailures()
	}
	if err := s.records.SaveResult(ctx, record.ID, result); err != nil {
		s.log.Error().Err(err).Str("record", record.ID).Msg("posting: не удалось сохранить результат")
	}
	if err := s.records.UpdateStatus(ctx, record.ID, status); err != nil {
		s.log.Error().Err(err).Str("record", record.ID).Msg("posting: не удалось обновить статус")
	}

	metrics.ObservePostingDuration(string(result.Metadata.PostType), s.now().Sub(start))
	s.log.Info().
		Str("record", record.ID).
		Str("status", string(status)).
		Int("requested", len(segments)).
		Int("posted", len(ids)).
		Msg("posting: публикация завершена")
	return result
}

func preview(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(segments[0]))
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength])
}
