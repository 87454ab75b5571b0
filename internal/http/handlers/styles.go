package handlers

import (
	"net/http"

	"studio/internal/domain"
)

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": domain.Styles()})
}
