package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"spacey/internal/util"
)

// AMQPQueueConfig configures the RabbitMQ scheduler.
type AMQPQueueConfig struct {
	URL   string
	Queue string
}

// AMQPJobQueue is a durable Scheduler on a RabbitMQ queue. A failed job is
// requeued once; a second failure drops it.
type AMQPJobQueue struct {
	conn  *amqp.Connection
	pub   *amqp.Channel
	queue string

	mu       sync.Mutex
	pubMu    sync.Mutex
	consumer *amqp.Channel
	tag      string
	wg       sync.WaitGroup
	closed   bool
}

// NewAMQPJobQueue dials the broker and declares the durable queue.
func NewAMQPJobQueue(cfg AMQPQueueConfig) (*AMQPJobQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	name := strings.TrimSpace(cfg.Queue)
	if name == "" {
		name = "content.ingest"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &AMQPJobQueue{conn: conn, pub: ch, queue: name}, nil
}

// Enqueue publishes the job as a persistent JSON message.
func (q *AMQPJobQueue) Enqueue(ctx context.Context, job Job) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.isClosed() {
		return ErrClosed
	}
	return q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         body,
	})
}

// Start consumes with a prefetch of concurrency and runs that many workers.
func (q *AMQPJobQueue) Start(ctx context.Context, concurrency int, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.consumer != nil {
		return errors.New("amqp queue already started")
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	tag := "content-" + util.NewID()
	deliveries, err := ch.ConsumeWithContext(ctx, q.queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}
	q.consumer = ch
	q.tag = tag
	q.consume(context.WithoutCancel(ctx), deliveries, concurrency, handler)
	return nil
}

// consume runs concurrency workers over deliveries. They exit once the
// stream is closed and every delivery already received is settled.
func (q *AMQPJobQueue) consume(ctx context.Context, deliveries <-chan amqp.Delivery, concurrency int, handler Handler) {
	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for d := range deliveries {
				q.deliver(ctx, d, handler)
			}
		}()
	}
}

func (q *AMQPJobQueue) deliver(ctx context.Context, d amqp.Delivery, handler Handler) {
	job, err := decodeJob(d.Body)
	if err != nil {
		slog.Warn("drop malformed job", "queue", q.queue, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := runHandler(ctx, handler, job); err != nil {
		requeue := !d.Redelivered
		slog.Warn("job failed", "job_id", job.ID, "content_id", job.ContentID, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Close cancels consumption, waits for in-flight jobs and closes the
// connection.
func (q *AMQPJobQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	consumer, tag := q.consumer, q.tag
	q.mu.Unlock()

	var errs []error
	if consumer != nil {
		// Cancel ends the delivery stream; the channel stays open for acks.
		errs = append(errs, consumer.Cancel(tag, false))
		q.wg.Wait()
		errs = append(errs, consumer.Close())
	}
	q.pubMu.Lock()
	errs = append(errs, q.pub.Close())
	q.pubMu.Unlock()
	errs = append(errs, q.conn.Close())
	return errors.Join(errs...)
}

func (q *AMQPJobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func runHandler(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func encodeJob(job Job) ([]byte, error) {
	if strings.TrimSpace(job.ContentID) == "" {
		return nil, errors.New("contentId required")
	}
	if job.ID == "" {
		job.ID = job.ContentID
	}
	return json.Marshal(job)
}

func decodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ContentID == "" {
		return Job{}, errors.New("decode job: contentId missing")
	}
	if job.ID == "" {
		job.ID = job.ContentID
	}
	return job, nil
}
