package image

import (
	"context"
	"errors"

	"studio/internal/providers/genai"
)

// GeminiGenerator implements Generator on top of the Gemini client. It sends
// every reference image plus the prompt as one multimodal request and returns
// exactly one synthesized image. Failures are never recovered here; they
// propagate to the caller untouched.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if len(req.Images) == 0 {
		return nil, errors.New("at least one reference image is required")
	}
	if req.Prompt == "" {
		return nil, errors.New("prompt is required")
	}

	blobs := make([]genai.Blob, len(req.Images))
	for i, img := range req.Images {
		blobs[i] = genai.Blob{MIME: img.MIME, Data: img.Data}
	}

	blob, err := g.client.GenerateImage(ctx, req.APIKey, blobs, req.Prompt)
	if err != nil {
		return nil, err
	}
	return &Asset{Data: blob.Data, MIME: blob.MIME}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
