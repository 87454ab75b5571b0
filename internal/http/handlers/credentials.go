package handlers

import (
	"encoding/json"
	"net/http"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type credentialStatusResponse struct {
	Personal         bool `json:"personal"`
	DefaultAvailable bool `json:"default_available"`
}

// CredentialSave validates the candidate key against the live service and
// persists it only on success; a failed validation leaves any previously
// stored key untouched.
func (a *App) CredentialSave(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.APIKey == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "api_key is required")
		return
	}
	if err := a.Credentials.Save(r.Context(), req.APIKey); err != nil {
		a.classified(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "saved"})
}

// CredentialClear removes the stored key and reverts to the environment
// default for subsequent calls.
func (a *App) CredentialClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Credentials.Clear(r.Context()); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CredentialStatus reports which credential would be used, never the key itself.
func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	stored, err := a.Credentials.Load(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credential")
		return
	}
	a.json(w, http.StatusOK, credentialStatusResponse{
		Personal:         stored != "",
		DefaultAvailable: a.Config.GeminiAPIKey != "",
	})
}
