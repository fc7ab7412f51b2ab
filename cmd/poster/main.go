package main

import (
	"context"
	"errors"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"x-thread-poster/internal/adapters/browser"
	"x-thread-poster/internal/adapters/history"
	"x-thread-poster/internal/adapters/repo"
	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/cache"
	"x-thread-poster/internal/infra/config"
	"x-thread-poster/internal/infra/db"
	applog "x-thread-poster/internal/infra/log"
	"x-thread-poster/internal/infra/metrics"
	"x-thread-poster/internal/infra/queue"
	"x-thread-poster/internal/usecase/posting"
)

const throttleKey = "posting:thread_throttle"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("poster: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var (
		postQueue domain.PostQueue
		appCache  domain.Cache
	)
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		appCache = cache.NewRedis(redisClient)
		postQueue = queue.NewRedisPostQueue(redisClient, cfg.Queues.Posts)
	}
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitPostQueue(cfg.RabbitURL, cfg.Queues.Posts)
		if err != nil {
			logger.Fatal().Err(err).Msg("poster: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		postQueue = rabbit
	}
	if postQueue == nil {
		logger.Fatal().Msg("poster: не задана ни одна очередь (RABBITMQ_URL или REDIS_ADDR)")
	}

	browserCfg := browser.Config{
		Bin:        cfg.Browser.Bin,
		Headless:   cfg.Browser.Headless,
		BaseURL:    cfg.Browser.BaseURL,
		CookieFile: cfg.Browser.CookieFile,
		NavTimeout: cfg.Browser.NavTimeout,
		ViewportW:  cfg.Browser.ViewportW,
		ViewportH:  cfg.Browser.ViewportH,
	}
	provider := browser.NewProvider(browserCfg, logger.With().Str("component", "browser").Logger())
	emergency := browser.NewEmergency(browserCfg, logger.With().Str("component", "emergency").Logger())

	var hookHistory posting.HookHistory
	if appCache != nil {
		hookHistory = history.NewCacheHookHistory(appCache, 6*time.Hour)
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	normalizer := posting.NewNormalizer(posting.SegmentCharLimit, rnd, hookHistory)
	publisher := posting.NewPublisher(provider, cfg.Posting.InterPostDelay, cfg.Posting.SegmentTimeout, logger.With().Str("component", "publisher").Logger())
	service := posting.NewService(publisher, emergency, repoAdapter, normalizer, logger.With().Str("component", "posting").Logger())

	worker := &jobWorker{
		log:      logger,
		queue:    postQueue,
		cache:    appCache,
		service:  service,
		throttle: cfg.Posting.MinThreadInterval,
	}

	logger.Info().Msg("poster: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("poster: остановлен")
}

type jobWorker struct {
	log      zerolog.Logger
	queue    domain.PostQueue
	cache    domain.Cache
	service  domain.PostingService
	throttle time.Duration
}

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("poster: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Str("cause", string(job.Cause)).
			Int("segments", len(job.Segments)).
			Logger()

		if w.throttled(len(job.Segments)) {
			jobLog.Info().Msg("poster: троттлинг тредов, задача возвращена в очередь")
			if err := ack(false); err != nil {
				jobLog.Error().Err(err).Msg("poster: не удалось вернуть задачу в очередь")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
			}
			continue
		}

		result := w.service.Post(ctx, job.Segments, domain.ContentTags{Topic: job.Topic, Style: job.Style})

		jobLog.Info().
			Bool("success", result.Success).
			Int("posted", result.PostedCount()).
			Str("error", result.Error).
			Msg("poster: задача обработана")

		if result.Success && len(job.Segments) > 1 {
			w.markThreadPosted()
		}

		// Итог публикации уже зафиксирован в записи; повторная доставка
		// привела бы к дублям в ленте, поэтому задача подтверждается всегда.
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("poster: не удалось подтвердить задачу")
		}
	}
}

// throttled сообщает, не рано ли стартовать новый тред. Одиночные посты
// не троттлятся.
func (w *jobWorker) throttled(segmentCount int) bool {
	if w.cache == nil || w.throttle <= 0 || segmentCount <= 1 {
		return false
	}
	_, err := w.cache.Get(throttleKey)
	return err == nil
}

func (w *jobWorker) markThreadPosted() {
	if w.cache == nil || w.throttle <= 0 {
		return
	}
	if err := w.cache.Set(throttleKey, []byte(time.Now().UTC().Format(time.RFC3339)), w.throttle); err != nil {
		w.log.Warn().Err(err).Msg("poster: не удалось обновить троттлинг")
	}
}
