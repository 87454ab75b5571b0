package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"studio/internal/providers/image"
)

// imagePayload is one uploaded photo, base64-encoded.
type imagePayload struct {
	Data     string `json:"data"`
	MIME     string `json:"mime"`
	Filename string `json:"filename,omitempty"`
}

func decodeImages(payloads []imagePayload) ([]image.SourceImage, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}
	out := make([]image.SourceImage, len(payloads))
	for i, p := range payloads {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(p.Data))
		if err != nil {
			return nil, fmt.Errorf("image %d: invalid base64 payload", i+1)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("image %d: empty payload", i+1)
		}
		mime := strings.TrimSpace(p.MIME)
		if mime == "" {
			mime = "image/png"
		}
		out[i] = image.SourceImage{Data: data, MIME: mime, Filename: p.Filename}
	}
	return out, nil
}
