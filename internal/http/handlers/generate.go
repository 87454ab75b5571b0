package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/middleware"
	"studio/internal/providers/image"
)

type generateRequest struct {
	Style  string         `json:"style"`
	Prompt string         `json:"prompt"`
	Notes  string         `json:"notes"`
	Images []imagePayload `json:"images"`
}

type assetResponse struct {
	StorageKey string `json:"storage_key,omitempty"`
	MIME       string `json:"mime"`
	Data       string `json:"data"`
}

// ImagesGenerate runs the single-shot flow: photos plus a style (or custom
// prompt) in, one synthesized image out. A failure surfaces the classified
// message and leaves the caller free to correct the input and retry.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	images, err := decodeImages(req.Images)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	prompt, err := resolvePrompt(req.Style, req.Prompt, req.Notes, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	apiKey, _, err := a.Credentials.Effective(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve credential")
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	asset, err := a.Generator.Generate(r.Context(), image.GenerateRequest{
		Images:    images,
		Prompt:    prompt,
		APIKey:    apiKey,
		RequestID: requestID,
	})
	if err != nil {
		a.classified(w, err)
		return
	}

	a.json(w, http.StatusOK, assetResponse{
		StorageKey: a.persistSingle(r, "generated/singles", asset),
		MIME:       asset.MIME,
		Data:       base64.StdEncoding.EncodeToString(asset.Data),
	})
}

// resolvePrompt picks the catalog style or the caller's custom prompt and
// assembles the final model prompt.
func resolvePrompt(styleID, custom, notes, locale string) (string, error) {
	custom = strings.TrimSpace(custom)
	var style domain.Style
	if styleID != "" {
		found, ok := domain.StyleByID(styleID)
		if !ok {
			return "", fmt.Errorf("unknown style %q", styleID)
		}
		style = found
	} else if custom == "" {
		return "", fmt.Errorf("a style or a custom prompt is required")
	}
	return image.BuildPrompt(style, custom, notes, locale), nil
}

func (a *App) persistSingle(r *http.Request, prefix string, asset *image.Asset) string {
	if a.Store == nil || len(asset.Data) == 0 {
		return ""
	}
	ext := ".png"
	switch strings.ToLower(asset.MIME) {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	key := fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), ext)
	saved, err := a.Store.Write(r.Context(), key, asset.Data)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: persist asset failed")
		return ""
	}
	return saved
}
