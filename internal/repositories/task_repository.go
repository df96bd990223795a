package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ussbot/internal/models"
)

// TaskRepository is the only write path to the persisted task table.
type TaskRepository interface {
	// Add inserts an open task and returns the new id. Fails with
	// models.ErrInvalidInput when the text trims to empty.
	Add(ctx context.Context, task *models.Task) (int64, error)
	// ListOpen returns the assignee's open tasks, newest first by id.
	// The ordering is a user-facing contract: digests and /mytasks show
	// the most recently assigned work on top.
	ListOpen(ctx context.Context, assigneeID int64) ([]models.Task, error)
	// MarkDone returns true iff a row with the id exists: first
	// transition to done, or already done (idempotent). A missing id is
	// a normal false, never an error.
	MarkDone(ctx context.Context, id int64) (bool, error)
	// DistinctOpenAssignees lists identities that currently have at
	// least one open, resolved task.
	DistinctOpenAssignees(ctx context.Context) ([]int64, error)
	// ResolveHandle backfills the identity onto every task that was
	// created for the handle before the person was known. Monotonic:
	// never unresolves. Returns the number of tasks resolved.
	ResolveHandle(ctx context.Context, handle string, identity int64) (int64, error)
	// CountByStatus reports open/done totals for the ops endpoint.
	CountByStatus(ctx context.Context) (open int64, done int64, err error)
}

type taskRepository struct {
	db *sql.DB
	// sem bounds how many callers may be inside a store operation at
	// once, so a burst of chat events cannot pile unbounded goroutines
	// onto the data file.
	sem chan struct{}
}

// NewTaskRepository creates a sqlite-backed task store. workers bounds
// concurrent store operations; values below 1 fall back to 4.
func NewTaskRepository(db *sql.DB, workers int) TaskRepository {
	if workers < 1 {
		workers = 4
	}
	return &taskRepository{db: db, sem: make(chan struct{}, workers)}
}

func (r *taskRepository) acquire(ctx context.Context) (release func(), err error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, ctx.Err())
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorageUnavailable, op, err)
}

func (r *taskRepository) Add(ctx context.Context, task *models.Task) (int64, error) {
	text := strings.TrimSpace(task.Text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty task text", models.ErrInvalidInput)
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := time.Now().UTC()
	var due any
	if task.DueDate != nil {
		due = task.DueDate.UTC().Format(time.RFC3339)
	}
	var handle any
	if task.AssigneeHandle != "" {
		handle = models.NormalizeHandle(task.AssigneeHandle)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (chat_id, assigner_id, assignee_id, assignee_handle, text, created_at, due_date, is_done)
		VALUES (?,?,?,?,?,?,?,0)`,
		task.ChatID, task.AssignerID, task.AssigneeID, handle, text, now.Format(time.RFC3339), due,
	)
	if err != nil {
		return 0, storageErr("insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert task", err)
	}
	task.ID = id
	task.Text = text
	task.CreatedAt = now
	return id, nil
}

func (r *taskRepository) ListOpen(ctx context.Context, assigneeID int64) ([]models.Task, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, assigner_id, assignee_id, COALESCE(assignee_handle,''), text, created_at, due_date, is_done
		FROM tasks
		WHERE assignee_id=? AND is_done=0
		ORDER BY id DESC`, assigneeID)
	if err != nil {
		return nil, storageErr("list open", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageErr("list open", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list open", err)
	}
	return tasks, nil
}

func (r *taskRepository) MarkDone(ctx context.Context, id int64) (bool, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	// Matching an already-done row still counts as affected, which is
	// exactly the idempotent contract.
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET is_done=1 WHERE id=?`, id)
	if err != nil {
		return false, storageErr("mark done", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark done", err)
	}
	return n > 0, nil
}

func (r *taskRepository) DistinctOpenAssignees(ctx context.Context) ([]int64, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT assignee_id FROM tasks WHERE is_done=0 AND assignee_id IS NOT NULL`)
	if err != nil {
		return nil, storageErr("distinct assignees", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("distinct assignees", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("distinct assignees", err)
	}
	return ids, nil
}

func (r *taskRepository) ResolveHandle(ctx context.Context, handle string, identity int64) (int64, error) {
	handle = models.NormalizeHandle(handle)
	if handle == "" || identity == 0 {
		return 0, nil
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET assignee_id=? WHERE assignee_id IS NULL AND assignee_handle=?`,
		identity, handle)
	if err != nil {
		return 0, storageErr("resolve handle", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("resolve handle", err)
	}
	return n, nil
}

func (r *taskRepository) CountByStatus(ctx context.Context) (int64, int64, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	var open, done int64
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_done=0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_done=1 THEN 1 ELSE 0 END), 0)
		FROM tasks`).Scan(&open, &done)
	if err != nil {
		return 0, 0, storageErr("count by status", err)
	}
	return open, done, nil
}

func scanTask(rows *sql.Rows) (models.Task, error) {
	var (
		t        models.Task
		assignee sql.NullInt64
		created  string
		due      sql.NullString
		isDone   int
	)
	if err := rows.Scan(&t.ID, &t.ChatID, &t.AssignerID, &assignee, &t.AssigneeHandle, &t.Text, &created, &due, &isDone); err != nil {
		return t, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.Int64
	}
	if ts, err := time.Parse(time.RFC3339, created); err == nil {
		t.CreatedAt = ts
	}
	if due.Valid {
		if ts, err := time.Parse(time.RFC3339, due.String); err == nil {
			t.DueDate = &ts
		}
	}
	t.IsDone = isDone != 0
	return t, nil
}
