package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/middleware"
	"studio/internal/pipeline"
	"studio/pkg/zip"
)

type batchTaskPayload struct {
	ID     string         `json:"id"`
	Images []imagePayload `json:"images"`
}

type batchRequest struct {
	Style  string             `json:"style"`
	Prompt string             `json:"prompt"`
	Notes  string             `json:"notes"`
	Tasks  []batchTaskPayload `json:"tasks"`
}

type batchStartResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type batchTaskResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	StorageKey string `json:"storage_key,omitempty"`
	MIME       string `json:"mime,omitempty"`
	Error      string `json:"error,omitempty"`
}

type batchStatusResponse struct {
	RunID    string              `json:"run_id"`
	Status   string              `json:"status"`
	Progress int                 `json:"progress"`
	Error    string              `json:"error,omitempty"`
	Tasks    []batchTaskResponse `json:"tasks"`
}

// BatchStart submits a batch run. Only one run may be active per session; the
// previous run must reach a terminal state before a new one is accepted.
func (a *App) BatchStart(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	prompt, err := resolvePrompt(req.Style, req.Prompt, req.Notes, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tasks, err := decodeTasks(req.Tasks)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	// The credential is captured once here and shared, read-only, by every
	// call within the run. Blank means the environment default is in effect.
	apiKey, personal, err := a.Credentials.Effective(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve credential")
		return
	}
	if !personal {
		apiKey = ""
	}

	runID, err := a.Runner.Start(r.Context(), pipeline.BatchRequest{
		SessionKey: sessionKey(r),
		Prompt:     prompt,
		APIKey:     apiKey,
		Tasks:      tasks,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyBatch):
			a.error(w, http.StatusBadRequest, "bad_request", "batch has no tasks")
		case errors.Is(err, domain.ErrBatchInProgress):
			a.error(w, http.StatusConflict, "batch_in_progress", "a batch is already running for this session")
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to start batch")
		}
		return
	}

	a.json(w, http.StatusAccepted, batchStartResponse{RunID: runID, Status: string(domain.RunStatusRunning)})
}

// BatchStatus reports run progress and per-task results.
func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, tasks, err := a.Runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return
	}

	resp := batchStatusResponse{
		RunID:    run.ID,
		Status:   string(run.Status),
		Progress: run.Progress,
		Error:    run.ErrorMessage,
		Tasks:    make([]batchTaskResponse, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, batchTaskResponse{
			ID:         t.TaskID,
			State:      string(t.State),
			StorageKey: t.StorageKey,
			MIME:       t.MIME,
			Error:      t.ErrorMessage,
		})
	}
	a.json(w, http.StatusOK, resp)
}

// BatchDownload streams a zip archive of the run's succeeded assets.
func (a *App) BatchDownload(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, tasks, err := a.Runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return
	}

	var assets []zip.Asset
	for _, t := range tasks {
		if t.State != domain.TaskStateSucceeded || t.StorageKey == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), t.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("run_id", run.ID).Str("task_id", t.TaskID).Msg("handlers: load asset failed")
			continue
		}
		assets = append(assets, zip.Asset{Filename: fmt.Sprintf("task-%s", t.TaskID), MIME: t.MIME, Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "run has no downloadable assets")
		return
	}

	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=batch-%s.zip", run.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func decodeTasks(payloads []batchTaskPayload) ([]pipeline.Task, error) {
	tasks := make([]pipeline.Task, 0, len(payloads))
	seen := make(map[string]struct{}, len(payloads))
	for i, p := range payloads {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate task id %q", id)
		}
		seen[id] = struct{}{}
		images, err := decodeImages(p.Images)
		if err != nil {
			return nil, fmt.Errorf("task %s: %s", id, err)
		}
		tasks = append(tasks, pipeline.Task{ID: id, Images: images})
	}
	return tasks, nil
}

func sessionKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-Session-Key")); key != "" {
		return key
	}
	return middleware.ClientIP(r)
}
