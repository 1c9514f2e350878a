package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/metrics"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Processor runs one claimed task.
type Processor interface {
	Process(ctx context.Context, task *Task) error
}

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Workers           int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	return c
}

const deadLetterPollTimeout = time.Second

// Pool claims tasks from the queue and fans them out to workers. Upstream
// failures and timeouts are retried with exponential backoff until
// MaxAttempts. Client errors and exhausted tasks go to the dead-letter
// list, which a drain loop persists.
type Pool struct {
	queue       Queue
	processor   Processor
	deadLetters repository.DeadLetterRepository
	config      PoolConfig
	jobs        chan *Task
	wg          sync.WaitGroup
	now         func() time.Time
}

func NewPool(queue Queue, processor Processor, deadLetters repository.DeadLetterRepository, cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		queue:       queue,
		processor:   processor,
		deadLetters: deadLetters,
		config:      cfg,
		jobs:        make(chan *Task, cfg.Workers),
		now:         time.Now,
	}
}

// Start launches the poller, the workers, the reaper and the dead-letter
// drain. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	l := log.L()
	l.Info().Int("workers", p.config.Workers).Msg("starting assistant worker pool")

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(3)
	go p.poll(ctx)
	go p.reap(ctx)
	go p.drainDeadLetters(ctx)
}

// Wait blocks until every goroutine started by Start has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) poll(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobs)

	l := log.L()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything due before sleeping again.
		for {
			task, err := p.queue.Claim(ctx, p.now(), p.config.VisibilityTimeout)
			if err != nil {
				if ctx.Err() == nil {
					l.Error().Err(err).Msg("failed to claim assistant task")
				}
				break
			}
			if task == nil {
				break
			}
			select {
			case p.jobs <- task:
			case <-ctx.Done():
				// Left in processing; the reaper returns it after the deadline.
				return
			}
		}

		select {
		case <-ctx.Done():
			l.Info().Msg("stopping assistant worker pool")
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.jobs {
		p.handle(ctx, id, task)
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, task *Task) {
	l := log.L().With().
		Int("worker", workerID).
		Str(log.FieldTaskID, task.ID).
		Int64(log.FieldRoomID, task.RoomID).
		Int(log.FieldAttempt, task.Attempt).
		Logger()
	ctx = log.WithLogger(ctx, l, log.FieldTaskID, log.FieldRoomID, log.FieldAttempt)

	err := p.processor.Process(ctx, task)
	if err == nil {
		if ackErr := p.queue.Ack(ctx, task); ackErr != nil {
			l.Error().Err(ackErr).Msg("failed to ack assistant task")
		}
		metrics.AssistantTasks.WithLabelValues(metrics.OutcomeSucceeded).Inc()
		return
	}

	if ctx.Err() != nil {
		// Still claimed; the reaper hands it out again after the deadline.
		l.Info().Err(err).Msg("assistant task interrupted by shutdown")
		return
	}

	task.LastError = err.Error()

	// Client errors fail the same way on every attempt; only upstream
	// failures and timeouts are worth another generation call.
	if domain.IsClientError(err) || task.Attempt+1 >= p.config.MaxAttempts {
		if dlqErr := p.queue.DeadLetter(ctx, task); dlqErr != nil {
			l.Error().Err(dlqErr).Msg("failed to dead-letter assistant task")
			return
		}
		metrics.AssistantTasks.WithLabelValues(metrics.OutcomeDeadLettered).Inc()
		l.Warn().Err(err).Msg("assistant task moved to dead-letter queue")
		return
	}

	backoff := p.config.RetryBackoff * time.Duration(1<<task.Attempt)
	if retryErr := p.queue.Retry(ctx, task, p.now().Add(backoff)); retryErr != nil {
		l.Error().Err(retryErr).Msg("failed to reschedule assistant task")
		return
	}
	metrics.AssistantTasks.WithLabelValues(metrics.OutcomeRetried).Inc()
	l.Warn().Err(err).Dur("backoff", backoff).Msg("assistant task failed, retrying")
}

func (p *Pool) reap(ctx context.Context) {
	defer p.wg.Done()

	l := log.L()
	interval := p.config.VisibilityTimeout / 2
	if interval < p.config.PollInterval {
		interval = p.config.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.ReapExpired(ctx, p.now())
			if err != nil {
				if ctx.Err() == nil {
					l.Error().Err(err).Msg("failed to reap assistant tasks")
				}
				continue
			}
			if n > 0 {
				metrics.AssistantTasks.WithLabelValues(metrics.OutcomeRequeued).Add(float64(n))
				l.Warn().Int("count", n).Msg("requeued assistant tasks past their visibility deadline")
			}
		}
	}
}

func (p *Pool) drainDeadLetters(ctx context.Context) {
	defer p.wg.Done()

	l := log.L()
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.queue.PopDeadLetter(ctx, deadLetterPollTimeout)
		if err != nil {
			if ctx.Err() == nil {
				l.Error().Err(err).Msg("failed to read dead-letter queue")
				time.Sleep(p.config.PollInterval)
			}
			continue
		}
		if task == nil {
			continue
		}

		l.Error().
			Str(log.FieldTaskID, task.ID).
			Int64(log.FieldRoomID, task.RoomID).
			Int64(log.FieldMessageID, task.TriggerMessageID).
			Int(log.FieldAttempt, task.Attempt+1).
			Str("last_error", task.LastError).
			Msg("assistant task dead-lettered")

		if p.deadLetters == nil {
			continue
		}
		dl := &domain.DeadLetter{
			TaskID:           task.ID,
			RoomID:           task.RoomID,
			TriggerMessageID: task.TriggerMessageID,
			Prompt:           task.Prompt,
			Attempts:         task.Attempt + 1,
			LastError:        task.LastError,
		}
		if err := p.deadLetters.Create(context.WithoutCancel(ctx), dl); err != nil {
			l.Error().Err(err).Str(log.FieldTaskID, task.ID).Msg("failed to persist dead letter")
		}
	}
}
