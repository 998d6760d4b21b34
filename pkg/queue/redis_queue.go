package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"spacey/internal/util"
	"spacey/pkg/domain"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// JobStatus is the operator-facing state of a Redis-backed job.
type JobStatus struct {
	ID           string    `json:"id"`
	ContentID    string    `json:"contentId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RedisJobQueue is a durable Scheduler on Redis streams with consumer
// groups. Failed jobs are re-added until MaxRetries attempts were made;
// messages left pending by a dead consumer are claimed after ClaimIdle.
type RedisJobQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	mu           sync.Mutex
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// NewRedisJobQueue connects lazily; the first command dials Redis.
func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisJobQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue records a queued status and appends the job to the stream. The
// job id defaults to a fresh id when empty.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job Job) error {
	if strings.TrimSpace(job.ContentID) == "" {
		return errors.New("contentId required")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = util.NewID()
	}
	now := time.Now().UTC()
	status := JobStatus{
		ID:        job.ID,
		ContentID: job.ContentID,
		Status:    StatusQueued,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, status); err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: jobValues(job),
	}).Err()
}

func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (JobStatus, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return JobStatus{}, false, nil
	}
	key := q.jobKey(jobID)
	data, err := q.client.HGetAll(ctx, key).Result()
	if err != nil {
		return JobStatus{}, false, err
	}
	if len(data) == 0 {
		return JobStatus{}, false, nil
	}
	job, err := decodeJobStatus(jobID, data)
	if err != nil {
		return JobStatus{}, false, err
	}
	return job, true, nil
}

// Start launches one stream consumer per unit of concurrency.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	q.mu.Lock()
	ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	return nil
}

// Close stops the consumers, waits for them and closes the client.
func (q *RedisJobQueue) Close() error {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	return q.client.Close()
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", q.stream, "group", q.group, "err", err)
		}
	})
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, consumer, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			slog.Warn("read stream", "stream", q.stream, "consumer", consumer, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, consumer, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, consumer string, msg redis.XMessage, handler Handler) {
	job, ok := jobFromValues(msg.Values)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	status, err := q.markProcessing(ctx, job.ID, job.ContentID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(context.WithoutCancel(ctx), job)
	if err == nil {
		_ = q.markDone(ctx, job.ID)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if status.Attempts >= q.maxRetries {
		slog.Warn("job failed permanently", "job_id", job.ID, "content_id", job.ContentID, "attempts", status.Attempts, "err", err)
		_ = q.markFailed(ctx, job.ID, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.markQueued(ctx, job.ID, err.Error())
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, job)
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) requeueAndAck(ctx context.Context, msgID string, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: jobValues(job),
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) markProcessing(ctx context.Context, jobID, contentID string) (JobStatus, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if job.ID == "" {
		job = JobStatus{ID: jobID}
	}
	if contentID != "" {
		job.ContentID = contentID
	}
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return JobStatus{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusQueued
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) markDone(ctx context.Context, jobID string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusDone
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, job JobStatus) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"contentId": job.ContentID,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJobStatus(jobID string, data map[string]string) (JobStatus, error) {
	job := JobStatus{ID: jobID}
	if v := data["contentId"]; v != "" {
		job.ContentID = v
	}
	if v := data["status"]; v != "" {
		job.Status = v
	}
	if v := data["error"]; v != "" {
		job.ErrorMessage = v
	}
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job, nil
}

func jobValues(job Job) map[string]any {
	values := map[string]any{
		"job_id":      job.ID,
		"content_id":  job.ContentID,
		"user_id":     job.UserID,
		"source_type": string(job.SourceType),
	}
	if job.SourceType == domain.SourcePDF {
		values["data"] = job.Data
	} else {
		values["locator"] = job.Locator
	}
	return values
}

func jobFromValues(values map[string]any) (Job, bool) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	job := Job{
		ID:         str("job_id"),
		ContentID:  str("content_id"),
		UserID:     str("user_id"),
		SourceType: domain.SourceType(str("source_type")),
		Locator:    str("locator"),
	}
	if job.ID == "" || job.ContentID == "" {
		return Job{}, false
	}
	if job.SourceType == domain.SourcePDF {
		job.Data = []byte(str("data"))
	}
	return job, true
}
