package repositories_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ussbot/internal/db"
	"ussbot/internal/migrate"
	"ussbot/internal/models"
	"ussbot/internal/repositories"
)

func newTestRepo(t *testing.T) repositories.TaskRepository {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repositories.NewTaskRepository(conn, 2)
}

func addTask(t *testing.T, repo repositories.TaskRepository, assignee int64, text string) int64 {
	t.Helper()
	id, err := repo.Add(context.Background(), &models.Task{
		ChatID:     -100,
		AssignerID: 1,
		AssigneeID: &assignee,
		Text:       text,
	})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	return id
}

func TestAddAndListOpen(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addTask(t, repo, 42, "  Ship the report  ")

	tasks, err := repo.ListOpen(ctx, 42)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("want 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Text != "Ship the report" {
		t.Errorf("text not trimmed: %q", got.Text)
	}
	if got.IsDone {
		t.Error("new task must be open")
	}
	if got.AssigneeID == nil || *got.AssigneeID != 42 {
		t.Errorf("assignee = %v, want 42", got.AssigneeID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestAddRejectsEmptyText(t *testing.T) {
	repo := newTestRepo(t)
	assignee := int64(42)

	_, err := repo.Add(context.Background(), &models.Task{
		ChatID: -100, AssignerID: 1, AssigneeID: &assignee, Text: "   ",
	})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}

	tasks, err := repo.ListOpen(context.Background(), assignee)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("rejected insert must not persist, got %d rows", len(tasks))
	}
}

func TestListOpenNewestFirst(t *testing.T) {
	repo := newTestRepo(t)

	first := addTask(t, repo, 42, "first")
	second := addTask(t, repo, 42, "second")
	third := addTask(t, repo, 42, "third")

	tasks, err := repo.ListOpen(context.Background(), 42)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	want := []int64{third, second, first}
	if len(tasks) != len(want) {
		t.Fatalf("want %d tasks, got %d", len(want), len(tasks))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("position %d: got id %d, want %d", i, tasks[i].ID, id)
		}
	}
}

func TestMarkDoneIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := addTask(t, repo, 42, "close me")

	ok, err := repo.MarkDone(ctx, id)
	if err != nil || !ok {
		t.Fatalf("first mark done = (%v, %v), want (true, nil)", ok, err)
	}
	tasks, _ := repo.ListOpen(ctx, 42)
	if len(tasks) != 0 {
		t.Fatalf("done task still listed as open")
	}

	// Second close is a no-op success.
	ok, err = repo.MarkDone(ctx, id)
	if err != nil || !ok {
		t.Fatalf("repeat mark done = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMarkDoneMissingID(t *testing.T) {
	repo := newTestRepo(t)

	ok, err := repo.MarkDone(context.Background(), 9999)
	if err != nil {
		t.Fatalf("missing id must not error: %v", err)
	}
	if ok {
		t.Fatal("missing id must return false")
	}
}

func TestDistinctOpenAssignees(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addTask(t, repo, 1, "a")
	addTask(t, repo, 1, "b")
	lastFor2 := addTask(t, repo, 2, "c")

	ids, err := repo.DistinctOpenAssignees(ctx)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 assignees, got %v", ids)
	}

	// Closing the last open task removes the assignee from the set.
	if _, err := repo.MarkDone(ctx, lastFor2); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	ids, err = repo.DistinctOpenAssignees(ctx)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("want [1], got %v", ids)
	}
}

func TestResolveHandleBackfill(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, &models.Task{
		ChatID: -100, AssignerID: 1, AssigneeHandle: "Bob", Text: "pending task",
	})
	if err != nil {
		t.Fatalf("add unresolved: %v", err)
	}

	// Unresolved tasks are invisible to listing and to the digest set.
	if ids, _ := repo.DistinctOpenAssignees(ctx); len(ids) != 0 {
		t.Fatalf("unresolved task leaked into assignee set: %v", ids)
	}

	n, err := repo.ResolveHandle(ctx, "@BOB", 77)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 resolved, got %d", n)
	}

	tasks, err := repo.ListOpen(ctx, 77)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Fatalf("backfilled task not listed: %v", tasks)
	}

	// Monotonic: a second resolution for the same handle touches nothing.
	n, err = repo.ResolveHandle(ctx, "bob", 88)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if n != 0 {
		t.Fatalf("resolution must be one-time, got %d rows", n)
	}
}

func TestCountByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addTask(t, repo, 1, "a")
	id := addTask(t, repo, 1, "b")
	if _, err := repo.MarkDone(ctx, id); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	open, done, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if open != 1 || done != 1 {
		t.Fatalf("counts = (%d, %d), want (1, 1)", open, done)
	}
}
