package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spacey/pkg/domain"
)

func TestWorkerPoolRunsEveryJob(t *testing.T) {
	pool := NewWorkerPool(4)
	var mu sync.Mutex
	seen := map[string]bool{}
	if err := pool.Start(context.Background(), 3, func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.ContentID] = true
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		if err := pool.Enqueue(context.Background(), JobFor(id, "u", domain.SourceURL, domain.SourceFromString("https://x"))); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(ids) {
		t.Fatalf("handled %d jobs, want %d", len(seen), len(ids))
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(16)
	var running, peak atomic.Int32
	if err := pool.Start(context.Background(), 2, func(context.Context, Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := pool.Enqueue(context.Background(), Job{ID: "j", ContentID: "c"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	_ = pool.Close()
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestWorkerPoolSurvivesPanicsAndErrors(t *testing.T) {
	pool := NewWorkerPool(4)
	var calls atomic.Int32
	if err := pool.Start(context.Background(), 1, func(_ context.Context, job Job) error {
		calls.Add(1)
		switch job.ContentID {
		case "panic":
			panic("boom")
		case "error":
			return errors.New("failed")
		}
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, id := range []string{"panic", "error", "ok"} {
		if err := pool.Enqueue(context.Background(), Job{ID: id, ContentID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	_ = pool.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestWorkerPoolHandlersOutliveStartContext(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	if err := pool.Start(ctx, 1, func(jobCtx context.Context, _ Job) error {
		cancel()
		got <- jobCtx.Err()
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := pool.Enqueue(context.Background(), Job{ID: "a", ContentID: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := <-got; err != nil {
		t.Fatalf("job context canceled: %v", err)
	}
	_ = pool.Close()
}

func TestWorkerPoolClosedRejectsWork(t *testing.T) {
	pool := NewWorkerPool(1)
	_ = pool.Close()
	if err := pool.Enqueue(context.Background(), Job{ContentID: "a"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue err = %v, want ErrClosed", err)
	}
	if err := pool.Start(context.Background(), 1, func(context.Context, Job) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("start err = %v, want ErrClosed", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWorkerPoolEnqueueHonorsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()
	if err := pool.Enqueue(context.Background(), Job{ContentID: "a"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := pool.Enqueue(ctx, Job{ContentID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("enqueue err = %v, want deadline exceeded", err)
	}
}

func TestJobSourceRoundTrip(t *testing.T) {
	pdf := JobFor("c1", "u1", domain.SourcePDF, domain.SourceFromBytes([]byte("%PDF-")))
	if pdf.ID != "c1" || !pdf.Source().IsBytes() || string(pdf.Source().Data) != "%PDF-" {
		t.Fatalf("pdf job = %+v", pdf)
	}
	url := JobFor("c2", "u1", domain.SourceURL, domain.SourceFromString("https://x"))
	if url.Source().IsBytes() || url.Source().Text != "https://x" {
		t.Fatalf("url job = %+v", url)
	}
}

func TestDecodeJob(t *testing.T) {
	body, err := encodeJob(JobFor("c1", "u1", domain.SourcePDF, domain.SourceFromBytes([]byte{0, 1, 2})))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	job, err := decodeJob(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID != "c1" || job.UserID != "u1" || len(job.Data) != 3 {
		t.Fatalf("job = %+v", job)
	}
	if _, err := decodeJob([]byte(`{"id":"x"}`)); err == nil {
		t.Fatalf("expected error for job without content id")
	}
	if _, err := decodeJob([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed body")
	}
	if _, err := encodeJob(Job{}); err == nil {
		t.Fatalf("expected error encoding job without content id")
	}
}
