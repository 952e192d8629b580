package schedule

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"sphexbot/internal/logging"
	"sphexbot/internal/store"
	"sphexbot/internal/store/redisstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type call struct {
	due     time.Time
	payload string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]int
}

func (r *recorder) callback(_ context.Context, due time.Time, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{due: due, payload: string(payload)})
	if r.fail[string(payload)] > 0 {
		r.fail[string(payload)]--
		return errors.New("remote delete failed")
	}
	return nil
}

func (r *recorder) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.payload)
	}
	return out
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	server := miniredis.RunT(t)
	s, err := redisstore.New(context.Background(), redisstore.Config{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("redisstore.New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return store.WithPrefix(s, "scheduler")
}

func newTestScheduler(t *testing.T, rec *recorder, clock *fakeClock) *Scheduler {
	t.Helper()
	s, err := New(newTestStore(t), rec.callback, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestTaskFiresOnlyWhenDue(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	rec := &recorder{}
	s := newTestScheduler(t, rec, clock)

	task, err := s.Schedule(ctx, 5*time.Second, []byte("doc-1"))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !task.Due.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("Due = %v, want %v", task.Due, start.Add(5*time.Second))
	}

	clock.Set(start.Add(4 * time.Second))
	result, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Due != 0 || len(rec.payloads()) != 0 {
		t.Fatalf("task fired early: result=%+v calls=%v", result, rec.payloads())
	}
	pending, err := s.Pending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Pending() = %v, %v; want one task", pending, err)
	}

	clock.Set(start.Add(6 * time.Second))
	result, err = s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("result = %+v, want one completed", result)
	}
	if got := rec.payloads(); len(got) != 1 || got[0] != "doc-1" {
		t.Fatalf("calls = %v, want [doc-1]", got)
	}
	if !rec.calls[0].due.Equal(task.Due) {
		t.Fatalf("callback due = %v, want %v", rec.calls[0].due, task.Due)
	}

	if _, err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if got := rec.payloads(); len(got) != 1 {
		t.Fatalf("completed task ran again: %v", got)
	}
	pending, _ = s.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("Pending() = %v, want none", pending)
	}
}

func TestFailedTaskIsRetried(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	rec := &recorder{fail: map[string]int{"doc-1": 1}}
	s := newTestScheduler(t, rec, clock)

	if _, err := s.Schedule(ctx, 5*time.Second, []byte("doc-1")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	clock.Set(start.Add(6 * time.Second))

	result, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", result)
	}
	if pending, _ := s.Pending(ctx); len(pending) != 1 {
		t.Fatalf("failed task was dropped")
	}

	result, err = s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("retry result = %+v, want completed", result)
	}
	if got := rec.payloads(); len(got) != 2 {
		t.Fatalf("calls = %v, want two attempts", got)
	}
	if stats := s.Stats(); stats.Failed != 1 || stats.Completed != 1 || stats.Scheduled != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFailureDoesNotBlockOtherTasks(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	rec := &recorder{fail: map[string]int{"first": 5}}
	s := newTestScheduler(t, rec, clock)

	mustSchedule(t, s, time.Second, "first")
	mustSchedule(t, s, 2*time.Second, "second")
	clock.Set(start.Add(time.Minute))

	result, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Due != 2 || result.Failed != 1 || result.Completed != 1 {
		t.Fatalf("result = %+v", result)
	}
	pending, _ := s.Pending(ctx)
	if len(pending) != 1 || string(pending[0].Payload) != "first" {
		t.Fatalf("pending = %+v, want only the failing task", pending)
	}
}

func TestCorruptTaskIsLoggedAndSkipped(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	rec := &recorder{}
	backing := newTestStore(t)

	var logs bytes.Buffer
	logger, err := logging.NewWithWriter(&logs, "warn", "text")
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	s, err := New(backing, rec.callback, WithClock(clock.Now), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := backing.HashSet(ctx, taskKey("broken"), map[string]string{"id": "broken", "due": "not a time"}); err != nil {
		t.Fatalf("HashSet() error = %v", err)
	}
	if err := backing.SortedAdd(ctx, dueKey, "broken", score(start)); err != nil {
		t.Fatalf("SortedAdd() error = %v", err)
	}
	mustSchedule(t, s, time.Second, "good")

	clock.Set(start.Add(2 * time.Second))
	result, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Completed != 1 {
		t.Fatalf("result = %+v, want one completed", result)
	}
	if got := rec.payloads(); len(got) != 1 || got[0] != "good" {
		t.Fatalf("calls = %v, want [good]", got)
	}

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "task_id=broken") || !strings.Contains(out, "parse due time") {
		t.Fatalf("log output = %q, want a warning naming the broken task", out)
	}
	if fields, _ := backing.HashGetAll(ctx, taskKey("broken")); len(fields) == 0 {
		t.Fatal("corrupt task data was removed")
	}
}

func TestTasksRunInDueOrder(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	rec := &recorder{}
	s := newTestScheduler(t, rec, clock)

	mustSchedule(t, s, 3*time.Second, "c")
	mustSchedule(t, s, time.Second, "a")
	mustSchedule(t, s, 2*time.Second, "b1")
	mustSchedule(t, s, 2*time.Second, "b2")
	clock.Set(start.Add(10 * time.Second))

	if _, err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	got := rec.payloads()
	want := []string{"a", "b1", "b2", "c"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestPanickingCallbackKeepsTask(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(newTestStore(t), func(context.Context, time.Time, []byte) error {
		panic("boom")
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSchedule(t, s, 0, "doc")

	result, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want failure", result)
	}
	if pending, _ := s.Pending(ctx); len(pending) != 1 {
		t.Fatal("task lost after panic")
	}
}

func TestRunLetsTickInProgressFinish(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var callbackErr error

	s, err := New(newTestStore(t), func(ctx context.Context, _ time.Time, _ []byte) error {
		close(entered)
		<-release
		callbackErr = ctx.Err()
		return nil
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSchedule(t, s, 0, "doc")

	s.Start(context.Background())
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if callbackErr != nil {
		t.Fatalf("callback context was cancelled: %v", callbackErr)
	}
	if pending, _ := s.Pending(context.Background()); len(pending) != 0 {
		t.Fatalf("pending = %v, want completed task removed", pending)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, func(context.Context, time.Time, []byte) error { return nil }); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(newTestStore(t), nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func mustSchedule(t *testing.T, s *Scheduler, delay time.Duration, payload string) {
	t.Helper()
	if _, err := s.Schedule(context.Background(), delay, []byte(payload)); err != nil {
		t.Fatalf("Schedule(%q) error = %v", payload, err)
	}
}
