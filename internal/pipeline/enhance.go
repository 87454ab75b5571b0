package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"studio/internal/providers/image"
)

// Upscaler orchestrates enhancement passes. Tiers HD and 2K issue exactly one
// enhancement call; 4K issues two in sequence, the first pass's output
// feeding the second to compound the effect.
type Upscaler struct {
	enhancer image.Enhancer
	logger   zerolog.Logger
}

func NewUpscaler(enhancer image.Enhancer, logger zerolog.Logger) *Upscaler {
	return &Upscaler{enhancer: enhancer, logger: logger}
}

func (u *Upscaler) Run(ctx context.Context, src image.SourceImage, tier image.Tier, apiKey, requestID string) (*image.Asset, error) {
	asset, err := u.enhancer.Enhance(ctx, image.EnhanceRequest{
		Image:     src,
		Tier:      tier,
		APIKey:    apiKey,
		RequestID: requestID,
	})
	if err != nil {
		return nil, err
	}

	if tier != image.Tier4K {
		return asset, nil
	}

	u.logger.Debug().Str("request_id", requestID).Msg("pipeline: running second 4K enhancement pass")
	return u.enhancer.Enhance(ctx, image.EnhanceRequest{
		Image:     image.SourceImage{Data: asset.Data, MIME: asset.MIME},
		Tier:      tier,
		APIKey:    apiKey,
		RequestID: requestID,
	})
}
