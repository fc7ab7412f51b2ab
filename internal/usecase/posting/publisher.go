package posting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

// Publisher последовательно отправляет сегменты треда через сессию браузера.
// Сегмент i+1 не отправляется, пока не подтверждён успех сегмента i и не
// получен его tweet id: каждый следующий сегмент отвечает на предыдущий,
// а не на корень треда.
type Publisher struct {
	provider       domain.SessionProvider
	interPostDelay time.Duration
	segmentTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	log            zerolog.Logger
}

// NewPublisher создаёт публикатор поверх провайдера сессий.
func NewPublisher(provider domain.SessionProvider, interPostDelay, segmentTimeout time.Duration, logger zerolog.Logger) *Publisher {
	if interPostDelay <= 0 {
		interPostDelay = 5 * time.Second
	}
	if segmentTimeout <= 0 {
		segmentTimeout = 30 * time.Second
	}
	return &Publisher{
		provider:       provider,
		interPostDelay: interPostDelay,
		segmentTimeout: segmentTimeout,
		sleep:          sleepCtx,
		log:            logger,
	}
}

// PostAll отправляет сегменты начиная с нового поста верхнего уровня.
// Возвращает результаты успешных сегментов и, при сбое, один неуспешный
// результат на индексе сбоя; дальнейшие сегменты не отправляются.
// Частичный успех — валидное терминальное состояние, оно никогда не теряется.
func (p *Publisher) PostAll(ctx context.Context, segments []string) []domain.SegmentResult {
	session, err := p.provider.Acquire(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("publisher: не удалось получить сессию браузера")
		return []domain.SegmentResult{{Err: &domain.SubmissionError{Index: 0, Err: err}}}
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.log.Warn().Err(err).Msg("publisher: ошибка закрытия сессии")
		}
	}()

	segCtx, cancel := context.WithTimeout(ctx, p.segmentTimeout)
	tweetID, err := session.SubmitPost(segCtx, segments[0])
	cancel()
	if err != nil {
		p.log.Error().Err(err).Msg("publisher: сбой первого сегмента")
		return []domain.SegmentResult{{Err: &domain.SubmissionError{Index: 0, Err: err}}}
	}

	results := make([]domain.SegmentResult, 0, len(segments))
	results = append(results, domain.SegmentResult{TweetID: tweetID, Success: true})
	metrics.IncSegmentsPosted(1)

	return p.replyLoop(ctx, session, segments, 1, tweetID, results)
}

// ContinueThread продолжает тред с индекса startIndex, отвечая на replyTarget.
// Используется после аварийной публикации первого сегмента: цепочка ответов
// сохраняется начиная со второго сегмента.
func (p *Publisher) ContinueThread(ctx context.Context, segments []string, startIndex int, replyTarget string) []domain.SegmentResult {
	session, err := p.provider.Acquire(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("publisher: не удалось получить сессию для продолжения треда")
		return []domain.SegmentResult{{Err: &domain.SubmissionError{Index: startIndex, Err: err}}}
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.log.Warn().Err(err).Msg("publisher: ошибка закрытия сессии")
		}
	}()

	return p.replyLoop(ctx, session, segments, startIndex, replyTarget, nil)
}

func (p *Publisher) replyLoop(ctx context.Context, session domain.BrowserSession, segments []string, startIndex int, replyTarget string, results []domain.SegmentResult) []domain.SegmentResult {
	for i := startIndex; i < len(segments); i++ {
		// Потерянная цель ответа — нарушение инварианта: лучше остановиться,
		// чем молча опубликовать сегмент вне треда.
		if replyTarget == "" {
			p.log.Error().Int("segment", i).Msg("publisher: отсутствует цель ответа")
			return append(results, domain.SegmentResult{Err: &domain.SubmissionError{Index: i, Err: domain.ErrNoReplyTarget}})
		}

		if err := p.sleep(ctx, p.interPostDelay); err != nil {
			return append(results, domain.SegmentResult{Err: &domain.SubmissionError{Index: i, Err: err}})
		}

		segCtx, cancel := context.WithTimeout(ctx, p.segmentTimeout)
		tweetID, err := session.SubmitReply(segCtx, segments[i], replyTarget)
		cancel()
		if err != nil {
			p.log.Error().Err(err).Int("segment", i).Msg("publisher: сбой сегмента, тред остановлен")
			return append(results, domain.SegmentResult{Err: &domain.SubmissionError{Index: i, Err: err}})
		}

		results = append(results, domain.SegmentResult{TweetID: tweetID, Success: true})
		metrics.IncSegmentsPosted(1)
		replyTarget = tweetID
	}
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
