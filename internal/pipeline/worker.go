package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/metrics"
	"reelforge/internal/queue"
)

// StartWorker launches a background worker that polls the task queue
// and dispatches stage handlers, bounded by the configured concurrency.
func StartWorker(ctx context.Context, cfg *config.Config, q *queue.Queue, h *Handlers, logger *slog.Logger) {
	go func() {
		pollInterval := time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond
		if pollInterval <= 0 {
			pollInterval = 2 * time.Second
		}

		maxTasks := cfg.Worker.MaxConcurrentTasks
		if maxTasks <= 0 {
			maxTasks = 4
		}

		sem := make(chan struct{}, maxTasks)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		// Tasks orphaned by a crashed worker go back to pending well
		// after any plausible handler runtime.
		const staleAge = 30 * time.Minute
		var lastRequeue time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if time.Since(lastRequeue) >= 5*time.Minute {
				if n, err := q.RequeueStale(ctx, staleAge); err != nil {
					logger.Error("stale task requeue failed", "error", err)
				} else if n > 0 {
					logger.Warn("requeued stale tasks", "count", n)
				}
				lastRequeue = time.Now()
			}

			capacity := maxTasks - len(sem)
			if capacity <= 0 {
				continue
			}

			tasks, err := q.Dequeue(ctx, capacity)
			if err != nil {
				logger.Error("task dequeue failed", "error", err)
				continue
			}

			for _, task := range tasks {
				task := task
				sem <- struct{}{}
				go func() {
					defer func() { <-sem }()

					start := time.Now()
					err := dispatch(ctx, h, task)
					metrics.RecordTask(task.Kind, err == nil, time.Since(start))

					if err != nil {
						logger.Error("task failed", "task_id", task.ID, "kind", task.Kind,
							"job_id", task.JobID, "attempt", task.Attempts, "error", err)
						if ferr := q.Fail(context.Background(), task.ID, task.Attempts, err.Error()); ferr != nil {
							logger.Error("task fail ack lost", "task_id", task.ID, "error", ferr)
						}
						return
					}
					if cerr := q.Complete(context.Background(), task.ID); cerr != nil {
						logger.Error("task complete ack lost", "task_id", task.ID, "error", cerr)
					}
				}()
			}
		}
	}()
}

func dispatch(ctx context.Context, h *Handlers, task queue.Task) error {
	switch task.Kind {
	case queue.KindContent:
		return h.HandleContent(ctx, task.JobID)
	case queue.KindAudio:
		return h.HandleAudio(ctx, task.JobID)
	case queue.KindImage:
		return h.HandleImage(ctx, task.JobID)
	case queue.KindVideo:
		return h.HandleVideo(ctx, task.JobID)
	case queue.KindRegenerateAudio:
		return h.HandleRegenerateAudio(ctx, task.JobID, task.Payload)
	case queue.KindRegenerateImage:
		return h.HandleRegenerateImage(ctx, task.JobID, task.Payload)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
