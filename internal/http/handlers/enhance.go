package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"studio/internal/middleware"
	"studio/internal/providers/image"
)

type enhanceRequest struct {
	Image imagePayload `json:"image"`
	Tier  string       `json:"tier"`
}

// ImagesEnhance upgrades one produced image to the requested quality tier.
// The 4K tier internally compounds two enhancement passes.
func (a *App) ImagesEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	tier, ok := image.ParseTier(req.Tier)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "tier must be one of HD, 2K, 4K")
		return
	}

	sources, err := decodeImages([]imagePayload{req.Image})
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	apiKey, _, err := a.Credentials.Effective(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve credential")
		return
	}

	asset, err := a.Upscaler.Run(r.Context(), sources[0], tier, apiKey, middleware.RequestIDFromContext(r.Context()))
	if err != nil {
		a.classified(w, err)
		return
	}

	a.json(w, http.StatusOK, assetResponse{
		StorageKey: a.persistSingle(r, "generated/enhanced", asset),
		MIME:       asset.MIME,
		Data:       base64.StdEncoding.EncodeToString(asset.Data),
	})
}
