package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"studio/internal/classify"
	"studio/internal/credentials"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/pipeline"
	"studio/internal/providers/image"
	"studio/internal/storage"
)

// RunReader loads a batch run with its task records.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.BatchRun, []domain.TaskRecord, error)
}

// App is the handler container; the router dispatches into its methods.
type App struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Generator   image.Generator
	Upscaler    *pipeline.Upscaler
	Runner      *pipeline.Runner
	Credentials *credentials.Store
	Runs        RunReader
	Store       *storage.FileStore
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// classified surfaces a provider failure as the classified user-facing
// message with a matching HTTP status.
func (a *App) classified(w http.ResponseWriter, err error) {
	cause := classify.Classify(err)
	a.error(w, statusForKind(cause.Kind), string(cause.Kind), cause.Message)
}

func statusForKind(kind classify.Kind) int {
	switch kind {
	case classify.KindInvalidCredential, classify.KindNoCredential:
		return http.StatusUnauthorized
	case classify.KindQuotaExhausted:
		return http.StatusTooManyRequests
	case classify.KindSafetyBlocked, classify.KindModelRefused:
		return http.StatusUnprocessableEntity
	case classify.KindTransportFailure:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
