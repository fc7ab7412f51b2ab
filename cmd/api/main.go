package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"x-thread-poster/internal/adapters/repo"
	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/config"
	"x-thread-poster/internal/infra/db"
	httpinfra "x-thread-poster/internal/infra/http"
	"x-thread-poster/internal/infra/metrics"
	"x-thread-poster/internal/infra/queue"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var postQueue domain.PostQueue
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewRabbitPostQueue(cfg.RabbitURL, cfg.Queues.Posts)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		postQueue = rabbit
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		postQueue = queue.NewRedisPostQueue(client, cfg.Queues.Posts)
	default:
		log.Fatal().Msg("api: не задана ни одна очередь (RABBITMQ_URL или REDIS_ADDR)")
	}

	server := httpinfra.NewServer(log.With().Str("component", "http").Logger())

	server.Router.Post("/api/v1/posts", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req createPostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		segments := req.Segments
		if len(segments) == 0 && req.Text != "" {
			segments = []string{req.Text}
		}
		if len(segments) == 0 {
			writeError(w, http.StatusBadRequest, "segments or text is required")
			return
		}

		job := domain.PostJob{
			ID:          uuid.NewString(),
			Segments:    segments,
			Topic:       req.Topic,
			Style:       req.Style,
			RequestedAt: time.Now().UTC(),
			Cause:       domain.PostCauseManual,
		}
		if err := postQueue.Enqueue(r.Context(), job); err != nil {
			log.Error().Err(err).Msg("api: не удалось поставить задачу в очередь")
			writeError(w, http.StatusInternalServerError, "failed to enqueue post")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
	})

	server.Router.Get("/api/v1/posts/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}
		records, err := repoAdapter.ListRecent(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("api: не удалось получить записи")
			writeError(w, http.StatusInternalServerError, "failed to list records")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": toRecordViews(records)})
	})

	server.Router.Get("/api/v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		record, err := repoAdapter.GetRecord(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, repo.ErrRecordNotFound) {
				writeError(w, http.StatusNotFound, "record not found")
				return
			}
			log.Error().Err(err).Msg("api: не удалось получить запись")
			writeError(w, http.StatusInternalServerError, "failed to load record")
			return
		}
		writeJSON(w, http.StatusOK, toRecordView(record))
	})

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")

	go func() {
		log.Info().Msg("api: старт")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type createPostRequest struct {
	Text     string   `json:"text,omitempty"`
	Segments []string `json:"segments,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	Style    string   `json:"style,omitempty"`
}

type recordView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Format    string    `json:"format"`
	Topic     string    `json:"topic,omitempty"`
	Style     string    `json:"style,omitempty"`
	TweetIDs  []string  `json:"tweet_ids,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecordView(record domain.PostingRecord) recordView {
	return recordView{
		ID:        record.ID,
		Status:    string(record.Status),
		Format:    string(record.Format),
		Topic:     record.Tags.Topic,
		Style:     record.Tags.Style,
		TweetIDs:  record.TweetIDs,
		Error:     record.Error,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toRecordViews(records []domain.PostingRecord) []recordView {
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, toRecordView(record))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
