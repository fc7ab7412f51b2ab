package domain

import (
	"context"
	"time"
)

// PostJobCause описывает источник запроса на публикацию.
type PostJobCause string

const (
	// PostCauseManual — публикация запрошена через API вручную.
	PostCauseManual PostJobCause = "manual"
	// PostCauseScheduled — публикация поставлена планировщиком.
	PostCauseScheduled PostJobCause = "scheduled"
)

// PostJob содержит информацию о задаче на публикацию.
type PostJob struct {
	ID          string       `json:"job_id,omitempty"`
	Segments    []string     `json:"segments"`
	Topic       string       `json:"topic,omitempty"`
	Style       string       `json:"style,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	Cause       PostJobCause `json:"cause"`
}

// PostQueue описывает очередь задач на публикацию.
type PostQueue interface {
	Enqueue(ctx context.Context, job PostJob) error
	Receive(ctx context.Context) (PostJob, PostAckFunc, error)
}

// PostAckFunc подтверждает успешную обработку или возвращает задачу в очередь.
type PostAckFunc func(success bool) error
