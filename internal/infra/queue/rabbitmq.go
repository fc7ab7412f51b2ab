package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

// RabbitPostQueue реализует очередь задач через AMQP.
type RabbitPostQueue struct {
	url   string
	queue string

	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

var _ domain.PostQueue = (*RabbitPostQueue)(nil)

// NewRabbitPostQueue создаёт очередь и объявляет durable-очередь на брокере.
func NewRabbitPostQueue(amqpURL, queue string) (*RabbitPostQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	q := &RabbitPostQueue{url: amqpURL, queue: queue}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RabbitPostQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := channel.Qos(1, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	q.conn = conn
	q.channel = channel
	q.deliveries = nil
	return nil
}

func (q *RabbitPostQueue) ensureConnected() error {
	if q.conn != nil && !q.conn.IsClosed() {
		return nil
	}
	return q.connect()
}

// Enqueue публикует задачу в очередь.
func (q *RabbitPostQueue) Enqueue(ctx context.Context, job domain.PostJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConnected(); err != nil {
		return err
	}

	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Ack(false) возвращает задачу
// брокеру для повторной доставки.
func (q *RabbitPostQueue) Receive(ctx context.Context) (domain.PostJob, domain.PostAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PostJob{}, nil, err
		}

		deliveries, err := q.consumeChannel()
		if err != nil {
			return domain.PostJob{}, nil, err
		}

		select {
		case <-ctx.Done():
			return domain.PostJob{}, nil, ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				// Канал закрыт брокером, переподключаемся.
				q.mu.Lock()
				q.deliveries = nil
				q.mu.Unlock()
				select {
				case <-ctx.Done():
					return domain.PostJob{}, nil, ctx.Err()
				case <-time.After(time.Second):
				}
				continue
			}

			var job domain.PostJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				_ = delivery.Nack(false, false)
				return domain.PostJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitPostQueue) consumeChannel() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureConnected(); err != nil {
		return nil, err
	}
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}
	return q.deliveries, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitPostQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
