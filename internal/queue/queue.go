// Package queue implements a Postgres-backed task queue. Tasks are
// claimed with SELECT ... FOR UPDATE SKIP LOCKED so multiple worker
// processes can share one table without double-delivery, and a task
// whose worker crashes mid-run is redelivered until its attempt budget
// runs out.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task kinds dispatched by the pipeline worker.
const (
	KindContent         = "content"
	KindAudio           = "audio"
	KindImage           = "image"
	KindVideo           = "video"
	KindRegenerateAudio = "regenerate-audio"
	KindRegenerateImage = "regenerate-image"
)

// Task is one unit of pipeline work bound to a job.
type Task struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	Kind      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// Queue persists and claims tasks.
type Queue struct {
	DB *sql.DB

	// MaxDeliveries bounds redelivery of a task whose handler never
	// acknowledged it. Past this, Fail marks the task dead.
	MaxDeliveries int
}

// New creates a Queue on the shared database handle.
func New(database *sql.DB, maxDeliveries int) *Queue {
	if maxDeliveries < 1 {
		maxDeliveries = 3
	}
	return &Queue{DB: database, MaxDeliveries: maxDeliveries}
}

// Enqueue inserts a pending task. payload may be nil.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, kind string, payload json.RawMessage) (uuid.UUID, error) {
	id := uuid.New()
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	_, err := q.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, job_id, kind, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, now(), now())`,
		id, jobID, kind, []byte(payload))
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Dequeue claims up to limit pending tasks, marking them running and
// bumping their attempt count. Rows locked by another worker are
// skipped rather than waited on.
func (q *Queue) Dequeue(ctx context.Context, limit int) ([]Task, error) {
	if limit < 1 {
		limit = 1
	}

	rows, err := q.DB.QueryContext(ctx, `
		UPDATE tasks SET status = 'running', attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, kind, payload, attempts, created_at`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var payload []byte
		if err := rows.Scan(&t.ID, &t.JobID, &t.Kind, &payload, &t.Attempts, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Payload = payload
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Complete acknowledges a finished task.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := q.DB.ExecContext(ctx,
		`UPDATE tasks SET status = 'done', updated_at = now() WHERE id = $1`, id)
	return err
}

// redeliveryStatus decides what happens to a task that was delivered
// but not acknowledged: another round as pending, or parked dead once
// the attempt budget is spent.
func (q *Queue) redeliveryStatus(attempts int) string {
	if attempts >= q.MaxDeliveries {
		return "dead"
	}
	return "pending"
}

// Fail records a handler error. The task goes back to pending for
// redelivery unless its attempt budget is spent, in which case it is
// marked dead and left in the table for inspection.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, attempts int, cause string) error {
	_, err := q.DB.ExecContext(ctx, `
		UPDATE tasks SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1`,
		id, q.redeliveryStatus(attempts), cause)
	return err
}

// RequeueStale handles tasks stuck running longer than age, covering
// workers that died without acknowledging. Dequeue already charged each
// delivery against attempts, so a stale task inside its budget goes
// back to pending and one past it is marked dead rather than redelivered
// forever.
func (q *Queue) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	res, err := q.DB.ExecContext(ctx, `
		UPDATE tasks SET
			status = CASE WHEN attempts >= $2 THEN 'dead' ELSE 'pending' END,
			last_error = CASE WHEN attempts >= $2 THEN 'worker lost, delivery budget exhausted' ELSE last_error END,
			updated_at = now()
		WHERE status = 'running' AND updated_at < now() - make_interval(secs => $1)`,
		age.Seconds(), q.MaxDeliveries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
