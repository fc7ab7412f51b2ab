package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PostRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_requests_total",
		Help: "Общее количество запросов на публикацию",
	})
	PostFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "post_failures_total",
		Help: "Публикации, завершившиеся неполным успехом или ошибкой",
	})
	SegmentsPostedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segments_posted_total",
		Help: "Количество успешно опубликованных сегментов",
	})
	EscalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emergency_escalations_total",
		Help: "Переключения на аварийный путь публикации",
	})
	TruncationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segment_truncations_total",
		Help: "Сегменты, усечённые нормализатором до лимита",
	})
	PostingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posting_duration_seconds",
		Help:    "Время полного прохода публикации",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180, 300},
	}, []string{"post_type"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostRequestsTotal,
		PostFailuresTotal,
		SegmentsPostedTotal,
		EscalationsTotal,
		TruncationsTotal,
		PostingDurationSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObservePostingDuration записывает время полного прохода публикации.
func ObservePostingDuration(postType string, duration time.Duration) {
	if postType == "" {
		postType = "unknown"
	}
	PostingDurationSeconds.WithLabelValues(postType).Observe(duration.Seconds())
}

// IncPostRequests увеличивает счётчик запросов на публикацию.
func IncPostRequests() {
	PostRequestsTotal.Inc()
}

// IncPostFailures увеличивает счётчик неуспешных публикаций.
func IncPostFailures() {
	PostFailuresTotal.Inc()
}

// IncSegmentsPosted учитывает опубликованные сегменты.
func IncSegmentsPosted(n int) {
	if n > 0 {
		SegmentsPostedTotal.Add(float64(n))
	}
}

// IncEscalations увеличивает счётчик аварийных переключений.
func IncEscalations() {
	EscalationsTotal.Inc()
}

// IncTruncations учитывает усечённые сегменты.
func IncTruncations(n int) {
	if n > 0 {
		TruncationsTotal.Add(float64(n))
	}
}
