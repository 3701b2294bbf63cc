// Package consumer drains the event queue, binds each event to its
// handler, and records the job lifecycle around the executor run.
package consumer

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/rhkang/shev/pkg/shev/executor"
	"github.com/rhkang/shev/pkg/shev/models"
	"github.com/rhkang/shev/pkg/shev/queue"
	"github.com/rhkang/shev/pkg/shev/store"
)

// Consumer is the single queue reader. Each received event is executed
// on its own goroutine, so a slow handler for one event type does not
// stall others; per-type serialization stays with the producers.
type Consumer struct {
	store  *store.Store
	queue  *queue.Queue
	exec   *executor.Executor
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a consumer over the queue.
func New(st *store.Store, q *queue.Queue, exec *executor.Executor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:  st,
		queue:  q,
		exec:   exec,
		logger: logger.With("component", "consumer"),
	}
}

// Run drains the queue until it closes or ctx is cancelled, then waits
// for in-flight executions to finish.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("event consumer started")
	defer c.logger.Info("event consumer stopped")
	defer c.wg.Wait()

	for {
		select {
		case event := <-c.queue.Receive():
			c.process(ctx, event)
		case <-c.queue.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, event models.Event) {
	c.logger.Info("processing event", "event_id", event.ID, "event_type", event.EventType)

	handler, ok := c.store.GetHandler(event.EventType)
	if !ok {
		c.logger.Warn("no handler for event type", "event_type", event.EventType)
		return
	}

	job, err := c.store.CreateJob(event, handler)
	if err != nil {
		c.logger.Error("create job failed", "event_type", event.EventType, "error", err)
		return
	}
	c.logger.Info("created job", "job_id", job.ID, "handler_id", handler.ID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, job, handler, event)
	}()
}

func (c *Consumer) execute(ctx context.Context, job models.Job, handler models.Handler, event models.Event) {
	// A client may have cancelled between job creation and here.
	if current, err := c.store.GetJob(job.ID); err == nil && current.Status == models.StatusCancelled {
		c.logger.Info("job cancelled before execution", "job_id", job.ID)
		return
	}

	if err := c.store.MarkRunning(job.ID); err != nil {
		c.logger.Error("mark running failed", "job_id", job.ID, "error", err)
		return
	}

	result, err := c.exec.Execute(ctx, handler, event.Context)
	if err != nil {
		c.logger.Error("job execution error", "job_id", job.ID, "error", err)
		c.fail(job, err.Error())
		return
	}

	if result.Success {
		c.logger.Info("job completed", "job_id", job.ID)
		if err := c.store.MarkCompleted(job.ID, result.Stdout); err != nil {
			c.logger.Error("mark completed failed", "job_id", job.ID, "error", err)
		}
		return
	}

	errMsg := result.Stderr
	if errMsg == "" {
		errMsg = "Exit code: " + strconv.Itoa(result.ExitCode)
	}
	c.logger.Error("job failed", "job_id", job.ID, "exit_code", result.ExitCode)
	c.fail(job, errMsg)
}

func (c *Consumer) fail(job models.Job, msg string) {
	if err := c.store.MarkFailed(job.ID, msg); err != nil {
		c.logger.Error("mark failed failed", "job_id", job.ID, "error", err)
	}
}
