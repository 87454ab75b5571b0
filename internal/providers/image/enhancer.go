package image

import (
	"context"
	"errors"

	"studio/internal/providers/genai"
)

// GeminiEnhancer implements Enhancer. Each invocation performs exactly one
// enhancement call; compounding passes for the highest tier are orchestrated
// by the caller, not here.
type GeminiEnhancer struct {
	client *genai.Client
}

func NewGeminiEnhancer(client *genai.Client) *GeminiEnhancer {
	return &GeminiEnhancer{client: client}
}

func (e *GeminiEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*Asset, error) {
	if len(req.Image.Data) == 0 {
		return nil, errors.New("image payload is required")
	}
	if _, ok := ParseTier(string(req.Tier)); !ok {
		return nil, errors.New("unsupported tier")
	}

	blob, err := e.client.GenerateImage(ctx, req.APIKey,
		[]genai.Blob{{MIME: req.Image.MIME, Data: req.Image.Data}},
		enhanceInstruction(req.Tier),
	)
	if err != nil {
		return nil, err
	}
	return &Asset{Data: blob.Data, MIME: blob.MIME}, nil
}

var _ Enhancer = (*GeminiEnhancer)(nil)
