// Package pipeline executes generation batches: strictly ordered, one task at
// a time, with fixed pacing between calls, per-task failure isolation and a
// single abort rule for shared-quota exhaustion.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/classify"
	"studio/internal/domain"
	"studio/internal/providers/image"
)

// Task is one independent generation request within a batch, identified by
// its position/group in the submission.
type Task struct {
	ID     string
	Images []image.SourceImage
}

// BatchRequest describes one batch submission. APIKey is the user-supplied
// credential; blank means the environment default is in effect, which is what
// arms the shared-quota abort rule.
type BatchRequest struct {
	SessionKey string
	Prompt     string
	APIKey     string
	Tasks      []Task
}

// RunStore receives pipeline state transitions. The Postgres repository
// implements it in production; tests substitute an in-memory fake.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.BatchRun, tasks []domain.TaskRecord) error
	UpdateTask(ctx context.Context, runID, taskID string, state domain.TaskState, storageKey, mime, message string) error
	UpdateProgress(ctx context.Context, runID string, progress int) error
	CompleteRun(ctx context.Context, runID string) error
	AbortRun(ctx context.Context, runID, message string) error
}

// AssetWriter persists generated payloads and returns the canonical key.
type AssetWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

const (
	// Fixed pacing between consecutive generation calls. Throttles request
	// rate to the external service; not configurable per task.
	defaultPacing = 300 * time.Millisecond

	abortMessage = "The shared API key has run out of quota. Supply your own API key and run the batch again."
)

// Runner executes batches sequentially. Only one run may be active per
// session key; a second submission is rejected until the previous run reaches
// a terminal state.
type Runner struct {
	generator   image.Generator
	store       AssetWriter
	runs        RunStore
	logger      zerolog.Logger
	pacing      time.Duration
	taskTimeout time.Duration

	mu     sync.Mutex
	active map[string]string // session key -> run ID
	wg     sync.WaitGroup
}

// Option tweaks Runner construction.
type Option func(*Runner)

// WithPacing overrides the delay inserted before every task except the first.
func WithPacing(d time.Duration) Option {
	return func(r *Runner) { r.pacing = d }
}

// WithTaskTimeout bounds each generation call.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Runner) { r.taskTimeout = d }
}

func NewRunner(generator image.Generator, store AssetWriter, runs RunStore, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		generator:   generator,
		store:       store,
		runs:        runs,
		logger:      logger,
		pacing:      defaultPacing,
		taskTimeout: 2 * time.Minute,
		active:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the submission, persists the run with every task already
// in progress so callers can render placeholders immediately, and executes
// the batch on a background goroutine. It returns the run identifier.
func (r *Runner) Start(ctx context.Context, req BatchRequest) (string, error) {
	if len(req.Tasks) == 0 {
		return "", domain.ErrEmptyBatch
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	for _, task := range req.Tasks {
		if len(task.Images) == 0 {
			return "", fmt.Errorf("task %q has no images", task.ID)
		}
	}

	runID := uuid.NewString()
	session := req.SessionKey
	if session == "" {
		session = runID
	}

	r.mu.Lock()
	if current, busy := r.active[session]; busy {
		r.mu.Unlock()
		r.logger.Warn().Str("session", session).Str("run_id", current).Msg("pipeline: rejected concurrent batch")
		return "", domain.ErrBatchInProgress
	}
	r.active[session] = runID
	r.mu.Unlock()

	run := &domain.BatchRun{
		ID:         runID,
		SessionKey: session,
		Prompt:     req.Prompt,
		Status:     domain.RunStatusRunning,
	}
	records := make([]domain.TaskRecord, len(req.Tasks))
	for i, task := range req.Tasks {
		records[i] = domain.TaskRecord{
			RunID:    runID,
			TaskID:   task.ID,
			Position: i,
			State:    domain.TaskStateInProgress,
		}
	}
	if err := r.runs.CreateRun(ctx, run, records); err != nil {
		r.release(session)
		return "", fmt.Errorf("create batch run: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(session)
		r.execute(context.Background(), runID, req)
	}()

	return runID, nil
}

// Wait blocks until all in-flight runs have reached a terminal state.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) release(session string) {
	r.mu.Lock()
	delete(r.active, session)
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, runID string, req BatchRequest) {
	personalKey := strings.TrimSpace(req.APIKey) != ""
	total := len(req.Tasks)
	completed := 0

	r.logger.Info().Str("run_id", runID).Int("tasks", total).Bool("personal_key", personalKey).Msg("pipeline: batch started")

	for i, task := range req.Tasks {
		if i > 0 {
			time.Sleep(r.pacing)
		}

		asset, err := r.generateOne(ctx, runID, task, req)
		if err != nil {
			cause := classify.Classify(err)
			if cause.QuotaExhausted && !personalKey {
				// Quota exhaustion on the shared default key is not a
				// property of this task; retrying the rest would only waste
				// time on certain failure. Discard everything and stop.
				r.logger.Warn().Str("run_id", runID).Str("task_id", task.ID).Msg("pipeline: shared quota exhausted, aborting batch")
				if abortErr := r.runs.AbortRun(ctx, runID, abortMessage); abortErr != nil {
					r.logger.Error().Err(abortErr).Str("run_id", runID).Msg("pipeline: abort failed")
				}
				return
			}
			r.logger.Warn().Err(err).Str("run_id", runID).Str("task_id", task.ID).Msg("pipeline: task failed")
			if updErr := r.runs.UpdateTask(ctx, runID, task.ID, domain.TaskStateFailed, "", "", cause.Message); updErr != nil {
				r.logger.Error().Err(updErr).Str("run_id", runID).Str("task_id", task.ID).Msg("pipeline: record failure failed")
			}
		} else {
			if updErr := r.runs.UpdateTask(ctx, runID, task.ID, domain.TaskStateSucceeded, asset.StorageKey, asset.MIME, ""); updErr != nil {
				r.logger.Error().Err(updErr).Str("run_id", runID).Str("task_id", task.ID).Msg("pipeline: record success failed")
			}
		}

		completed++
		progress := int(math.Round(float64(completed) / float64(total) * 100))
		if err := r.runs.UpdateProgress(ctx, runID, progress); err != nil {
			r.logger.Error().Err(err).Str("run_id", runID).Msg("pipeline: progress update failed")
		}
	}

	if err := r.runs.CompleteRun(ctx, runID); err != nil {
		r.logger.Error().Err(err).Str("run_id", runID).Msg("pipeline: complete failed")
	}
	r.logger.Info().Str("run_id", runID).Msg("pipeline: batch completed")
}

func (r *Runner) generateOne(ctx context.Context, runID string, task Task, req BatchRequest) (*image.Asset, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()

	asset, err := r.generator.Generate(callCtx, image.GenerateRequest{
		Images:    task.Images,
		Prompt:    req.Prompt,
		APIKey:    req.APIKey,
		RequestID: task.ID,
	})
	if err != nil {
		return nil, err
	}

	if r.store != nil && len(asset.Data) > 0 {
		key := fmt.Sprintf("generated/batches/%s/task-%s%s", runID, task.ID, extensionForMIME(asset.MIME))
		if saved, err := r.store.Write(callCtx, key, asset.Data); err != nil {
			r.logger.Warn().Err(err).Str("task_id", task.ID).Msg("pipeline: persist asset failed")
		} else {
			asset.StorageKey = saved
		}
	}
	return asset, nil
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
