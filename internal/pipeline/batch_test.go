package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/providers/genai"
	"studio/internal/providers/image"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []image.GenerateRequest
	respond  func(req image.GenerateRequest) (*image.Asset, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return &image.Asset{Data: []byte("img-" + req.RequestID), MIME: "image/png"}, nil
}

func (f *fakeGenerator) seen() []image.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]image.GenerateRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

type memRunStore struct {
	mu       sync.Mutex
	run      *domain.BatchRun
	tasks    map[string]*domain.TaskRecord
	progress []int
	aborted  bool
	abortMsg string
	complete bool
}

func newMemRunStore() *memRunStore {
	return &memRunStore{tasks: make(map[string]*domain.TaskRecord)}
}

func (m *memRunStore) CreateRun(ctx context.Context, run *domain.BatchRun, tasks []domain.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.run = &copied
	for i := range tasks {
		rec := tasks[i]
		m.tasks[rec.TaskID] = &rec
	}
	return nil
}

func (m *memRunStore) UpdateTask(ctx context.Context, runID, taskID string, state domain.TaskState, storageKey, mime, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return errors.New("unknown task " + taskID)
	}
	rec.State = state
	rec.StorageKey = storageKey
	rec.MIME = mime
	rec.ErrorMessage = message
	return nil
}

func (m *memRunStore) UpdateProgress(ctx context.Context, runID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, progress)
	if progress > m.run.Progress {
		m.run.Progress = progress
	}
	return nil
}

func (m *memRunStore) CompleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete = true
	m.run.Status = domain.RunStatusCompleted
	return nil
}

func (m *memRunStore) AbortRun(ctx context.Context, runID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	m.abortMsg = message
	m.run.Status = domain.RunStatusAborted
	m.run.ErrorMessage = message
	m.tasks = make(map[string]*domain.TaskRecord)
	return nil
}

func (m *memRunStore) task(t *testing.T, id string) domain.TaskRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[id]
	if !ok {
		t.Fatalf("task %s not recorded", id)
	}
	return *rec
}

type memAssetWriter struct {
	mu   sync.Mutex
	keys []string
}

func (m *memAssetWriter) Write(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return key, nil
}

func testRunner(gen image.Generator, store *memRunStore, opts ...Option) *Runner {
	logger := zerolog.New(io.Discard)
	opts = append([]Option{WithPacing(time.Millisecond)}, opts...)
	return NewRunner(gen, &memAssetWriter{}, store, logger, opts...)
}

func sourceTasks(ids ...string) []Task {
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, Task{ID: id, Images: []image.SourceImage{{Data: []byte("src"), MIME: "image/jpeg"}}})
	}
	return tasks
}

func quotaError() error {
	return &genai.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded"}
}

func TestStartRejectsEmptyBatch(t *testing.T) {
	runner := testRunner(&fakeGenerator{}, newMemRunStore())
	_, err := runner.Start(context.Background(), BatchRequest{SessionKey: "s", Prompt: "p"})
	if !errors.Is(err, domain.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestStartRejectsMissingPrompt(t *testing.T) {
	runner := testRunner(&fakeGenerator{}, newMemRunStore())
	_, err := runner.Start(context.Background(), BatchRequest{SessionKey: "s", Tasks: sourceTasks("1")})
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestBatchPreservesOrderAndCompletes(t *testing.T) {
	gen := &fakeGenerator{}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	runID, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-a",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}
	runner.Wait()

	requests := gen.seen()
	if len(requests) != 3 {
		t.Fatalf("expected 3 generation calls, got %d", len(requests))
	}
	for i, want := range []string{"1", "2", "3"} {
		if requests[i].RequestID != want {
			t.Fatalf("call %d was task %s, want %s", i, requests[i].RequestID, want)
		}
	}

	if !store.complete || store.run.Status != domain.RunStatusCompleted {
		t.Fatalf("run not completed: %+v", store.run)
	}
	for _, id := range []string{"1", "2", "3"} {
		rec := store.task(t, id)
		if rec.State != domain.TaskStateSucceeded {
			t.Fatalf("task %s state = %s", id, rec.State)
		}
		if rec.StorageKey == "" {
			t.Fatalf("task %s has no storage key", id)
		}
	}
}

func TestBatchEveryTaskReachesTerminalState(t *testing.T) {
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		if req.RequestID == "2" {
			return nil, errors.New("some opaque failure")
		}
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-b",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	for _, id := range []string{"1", "2", "3"} {
		rec := store.task(t, id)
		if !rec.State.Terminal() {
			t.Fatalf("task %s left in state %s", id, rec.State)
		}
	}
	if got := store.task(t, "2").State; got != domain.TaskStateFailed {
		t.Fatalf("task 2 state = %s, want failed", got)
	}
	if store.task(t, "2").ErrorMessage == "" {
		t.Fatal("failed task has no error message")
	}
	if !store.complete {
		t.Fatal("run with isolated failure should still complete")
	}
}

func TestSafetyBlockOnlyFailsTheBlockedTask(t *testing.T) {
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		if req.RequestID == "2" {
			return nil, &genai.SafetyError{Reason: "IMAGE_SAFETY"}
		}
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-c",
		Prompt:     "restyle",
		APIKey:     "personal-key",
		Tasks:      sourceTasks("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	if got := store.task(t, "1").State; got != domain.TaskStateSucceeded {
		t.Fatalf("task 1 state = %s", got)
	}
	if got := store.task(t, "2").State; got != domain.TaskStateFailed {
		t.Fatalf("task 2 state = %s", got)
	}
	if got := store.task(t, "3").State; got != domain.TaskStateSucceeded {
		t.Fatalf("task 3 state = %s", got)
	}
	if len(gen.seen()) != 3 {
		t.Fatalf("expected all 3 tasks attempted, got %d", len(gen.seen()))
	}
}

func TestSharedQuotaExhaustionAbortsAndDiscards(t *testing.T) {
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		if req.RequestID == "2" {
			return nil, quotaError()
		}
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	// Blank APIKey means the environment default is in effect.
	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-d",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1", "2", "3", "4", "5"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	if len(gen.seen()) != 2 {
		t.Fatalf("expected abort after task 2, got %d calls", len(gen.seen()))
	}
	if !store.aborted {
		t.Fatal("run was not aborted")
	}
	if store.run.Status != domain.RunStatusAborted {
		t.Fatalf("run status = %s", store.run.Status)
	}
	if store.abortMsg == "" {
		t.Fatal("abort carries no message")
	}
	store.mu.Lock()
	remaining := len(store.tasks)
	store.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("%d task results retained after abort, want 0", remaining)
	}
	if store.complete {
		t.Fatal("aborted run must not be marked completed")
	}
}

func TestPersonalKeyQuotaFailsTaskOnly(t *testing.T) {
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		if req.RequestID == "2" {
			return nil, quotaError()
		}
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-e",
		Prompt:     "restyle",
		APIKey:     "personal-key",
		Tasks:      sourceTasks("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	if store.aborted {
		t.Fatal("personal-key quota exhaustion must not abort the batch")
	}
	if len(gen.seen()) != 3 {
		t.Fatalf("expected all tasks attempted, got %d", len(gen.seen()))
	}
	if got := store.task(t, "2").State; got != domain.TaskStateFailed {
		t.Fatalf("task 2 state = %s", got)
	}
	if got := store.task(t, "3").State; got != domain.TaskStateSucceeded {
		t.Fatalf("task 3 state = %s", got)
	}
	if !store.complete {
		t.Fatal("run should complete")
	}
}

func TestSecondBatchRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		<-release
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	if _, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-f",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1"),
	}); err != nil {
		t.Fatalf("first Start error: %v", err)
	}

	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-f",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1"),
	})
	if !errors.Is(err, domain.ErrBatchInProgress) {
		t.Fatalf("expected ErrBatchInProgress, got %v", err)
	}

	// A different session is not affected by the guard.
	if _, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-g",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1"),
	}); err != nil {
		t.Fatalf("other session Start error: %v", err)
	}

	close(release)
	runner.Wait()

	// Terminal state frees the slot for the next submission.
	if _, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-f",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1"),
	}); err != nil {
		t.Fatalf("restart after completion error: %v", err)
	}
	runner.Wait()
}

func TestProgressIsMonotonicAndEndsAtHundred(t *testing.T) {
	gen := &fakeGenerator{respond: func(req image.GenerateRequest) (*image.Asset, error) {
		if req.RequestID == "2" {
			return nil, errors.New("boom")
		}
		return &image.Asset{Data: []byte("ok"), MIME: "image/png"}, nil
	}}
	store := newMemRunStore()
	runner := testRunner(gen, store)

	_, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-h",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1", "2", "3"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	if len(store.progress) != 3 {
		t.Fatalf("expected 3 progress updates, got %v", store.progress)
	}
	prev := -1
	for _, p := range store.progress {
		if p <= prev {
			t.Fatalf("progress not monotonic: %v", store.progress)
		}
		prev = p
	}
	if store.progress[0] != 33 {
		t.Fatalf("first update = %d, want rounded 33", store.progress[0])
	}
	if store.progress[len(store.progress)-1] != 100 {
		t.Fatalf("final update = %d, want 100", store.progress[len(store.progress)-1])
	}
}

func TestPacingBetweenTasks(t *testing.T) {
	gen := &fakeGenerator{}
	store := newMemRunStore()
	runner := testRunner(gen, store, WithPacing(40*time.Millisecond))

	start := time.Now()
	if _, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-i",
		Prompt:     "restyle",
		Tasks:      sourceTasks("1", "2", "3"),
	}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("three tasks finished in %v, pacing not applied", elapsed)
	}
}

func TestStorageKeysAreScopedToRun(t *testing.T) {
	gen := &fakeGenerator{}
	store := newMemRunStore()
	writer := &memAssetWriter{}
	runner := NewRunner(gen, writer, store, zerolog.New(io.Discard), WithPacing(time.Millisecond))

	runID, err := runner.Start(context.Background(), BatchRequest{
		SessionKey: "session-j",
		Prompt:     "restyle",
		Tasks:      sourceTasks("7"),
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	runner.Wait()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.keys) != 1 {
		t.Fatalf("expected 1 stored asset, got %d", len(writer.keys))
	}
	want := "generated/batches/" + runID + "/task-7.png"
	if writer.keys[0] != want {
		t.Fatalf("storage key = %q, want %q", writer.keys[0], want)
	}
}
