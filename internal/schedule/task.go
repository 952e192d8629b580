package schedule

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"sphexbot/internal/store"
)

const dueKey = "due"

// Task is a deferred one-shot action. Tasks are ordered by Due, then ID.
type Task struct {
	ID      string
	Due     time.Time
	Payload []byte
}

// TaskStore keeps tasks in a sorted set scored by due time (unix ms), with
// each task's fields in its own hash.
type TaskStore struct {
	store  store.Store
	logger *slog.Logger
}

// NewTaskStore logs to slog.Default when logger is nil.
func NewTaskStore(s store.Store, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{store: s, logger: logger}
}

func taskKey(id string) string { return "task:" + id }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

// Add persists a task. The hash is written before the index entry so an
// indexed task always has its fields.
func (ts *TaskStore) Add(ctx context.Context, task Task) error {
	fields := map[string]string{
		"id":      task.ID,
		"due":     task.Due.UTC().Format(time.RFC3339Nano),
		"payload": base64.StdEncoding.EncodeToString(task.Payload),
	}
	if err := ts.store.HashSet(ctx, taskKey(task.ID), fields); err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	if err := ts.store.SortedAdd(ctx, dueKey, task.ID, score(task.Due)); err != nil {
		return fmt.Errorf("index task %s: %w", task.ID, err)
	}
	return nil
}

// Due returns the tasks with Due <= now, ascending.
func (ts *TaskStore) Due(ctx context.Context, now time.Time) ([]Task, error) {
	tasks, err := ts.load(ctx, score(now))
	if err != nil {
		return nil, err
	}
	due := tasks[:0]
	for _, task := range tasks {
		// The index has millisecond resolution; never run early.
		if !task.Due.After(now) {
			due = append(due, task)
		}
	}
	return due, nil
}

// Pending returns every stored task, ascending.
func (ts *TaskStore) Pending(ctx context.Context) ([]Task, error) {
	return ts.load(ctx, math.Inf(1))
}

// Remove deletes a task. Removing an unknown task is not an error.
func (ts *TaskStore) Remove(ctx context.Context, id string) error {
	if err := ts.store.SortedRemove(ctx, dueKey, id); err != nil {
		return fmt.Errorf("unindex task %s: %w", id, err)
	}
	if err := ts.store.Delete(ctx, taskKey(id)); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (ts *TaskStore) load(ctx context.Context, maxScore float64) ([]Task, error) {
	ids, err := ts.store.SortedRangeByScore(ctx, dueKey, 0, maxScore)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		fields, err := ts.store.HashGetAll(ctx, taskKey(id))
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", id, err)
		}
		if len(fields) == 0 {
			// Index entry without task data.
			_ = ts.store.SortedRemove(ctx, dueKey, id)
			continue
		}
		task, err := decodeTask(id, fields)
		if err != nil {
			// Left in place for inspection; the other tasks still run.
			ts.logger.Warn("skipping corrupt scheduled task", "task_id", id, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].Due.Equal(tasks[j].Due) {
			return tasks[i].Due.Before(tasks[j].Due)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func decodeTask(id string, fields map[string]string) (Task, error) {
	due, err := time.Parse(time.RFC3339Nano, fields["due"])
	if err != nil {
		return Task{}, fmt.Errorf("task %s: parse due time: %w", id, err)
	}
	payload, err := base64.StdEncoding.DecodeString(fields["payload"])
	if err != nil {
		return Task{}, fmt.Errorf("task %s: decode payload: %w", id, err)
	}
	return Task{ID: id, Due: due, Payload: payload}, nil
}
