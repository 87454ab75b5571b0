package image

import (
	"context"
	"strings"
)

// Tier enumerates target quality levels for the enhancement operation.
type Tier string

const (
	TierHD Tier = "HD"
	Tier2K Tier = "2K"
	Tier4K Tier = "4K"
)

// ParseTier sanitizes free-form user input into a supported tier.
func ParseTier(raw string) (Tier, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(TierHD):
		return TierHD, true
	case string(Tier2K):
		return Tier2K, true
	case string(Tier4K):
		return Tier4K, true
	default:
		return "", false
	}
}

// SourceImage describes an uploaded photo used as conditioning input.
type SourceImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// Asset represents a generated or enhanced image.
type Asset struct {
	Data       []byte
	MIME       string
	StorageKey string
}

// GenerateRequest describes a normalized generation request.
type GenerateRequest struct {
	Images    []SourceImage
	Prompt    string
	APIKey    string // optional; blank falls back to the environment default
	RequestID string
}

// EnhanceRequest describes a single enhancement pass.
type EnhanceRequest struct {
	Image     SourceImage
	Tier      Tier
	APIKey    string
	RequestID string
}

// Generator is the contract implemented by the generation client.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// Enhancer is the contract implemented by the enhancement client. One
// invocation performs exactly one enhancement call; tier chaining is the
// caller's concern.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*Asset, error)
}
