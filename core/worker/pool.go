// Package worker runs jobs on a fixed set of shards. Jobs that share a key land on
// the same shard and run one after another in submission order.
package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/flowbot/core/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("worker: queue closed")
	// ErrQueueFull indicates the key's shard is saturated and the job was not accepted.
	ErrQueueFull = errors.New("worker: queue full")
)

// Options controls the pool.
type Options struct {
	// Shards is the number of worker goroutines.
	Shards int
	// QueueSize is the total buffer, split evenly across shards.
	QueueSize int
	// Retry reports whether a failed job may run again. Nil disables retries.
	Retry        func(error) bool
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job including retries.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	key    string
	action string
	run    func(context.Context) error
}

// Pool executes jobs asynchronously with per-key ordering.
type Pool struct {
	opts   Options
	shards []chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
	done   atomic.Uint64
}

// New starts a pool, filling zero options with defaults.
func New(opts Options) *Pool {
	if opts.Shards <= 0 {
		opts.Shards = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 2 * time.Minute
	}
	perShard := opts.QueueSize / opts.Shards
	if perShard < 1 {
		perShard = 1
	}

	p := &Pool{opts: opts, shards: make([]chan job, opts.Shards)}
	p.wg.Add(opts.Shards)
	for i := range p.shards {
		p.shards[i] = make(chan job, perShard)
		go p.worker(p.shards[i])
	}
	return p
}

// Enqueue schedules run on key's shard without blocking.
func (p *Pool) Enqueue(ctx context.Context, key, action string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("worker: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.shards[p.shardFor(key)] <- job{ctx: ctx, key: key, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finished with an error.
func (p *Pool) ErrorCount() uint64 { return p.errs.Load() }

// DoneCount returns the number of jobs that finished, successfully or not.
func (p *Pool) DoneCount() uint64 { return p.done.Load() }

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pool) worker(jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		p.handleJob(j)
	}
}

func (p *Pool) handleJob(j job) {
	defer p.done.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.errs.Add(1)
			logger.Error(j.ctx, "worker", "job.panic",
				append(jobAttrs(j), slog.Any("panic", r))...,
			)
		}
	}()

	deadlineCtx, cancel := context.WithTimeout(j.ctx, p.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := 1
	if p.opts.Retry != nil {
		attempts += p.opts.MaxRetries
	}

	var lastErr error
attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = j.run(deadlineCtx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info(j.ctx, "worker", "job.retry.success",
					append(jobAttrs(j), slog.Int("attempt", attempt))...,
				)
			}
			logger.Debug(j.ctx, "worker", "job.done",
				append(jobAttrs(j), slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds()))...,
			)
			return
		}
		if attempt == attempts || p.opts.Retry == nil || !p.opts.Retry(lastErr) {
			break
		}

		delay := p.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = errors.Join(lastErr, deadlineCtx.Err())
			break attemptLoop
		case <-timer.C:
			logger.Debug(j.ctx, "worker", "job.retry.backoff",
				append(jobAttrs(j),
					slog.Int("attempt", attempt),
					slog.Duration("delay", delay),
				)...,
			)
		}
	}

	p.errs.Add(1)
	logger.Error(j.ctx, "worker", "job.fail",
		append(append(jobAttrs(j), logger.ErrAttrs(lastErr)...),
			slog.Int("attempts", attempts),
			slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)...,
	)
}

func jobAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.key != "" {
		attrs = append(attrs, slog.String("key", j.key))
	}
	return attrs
}
