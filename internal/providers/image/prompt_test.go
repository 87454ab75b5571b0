package image

import (
	"strings"
	"testing"

	"studio/internal/domain"
)

func TestBuildPromptFromStyle(t *testing.T) {
	style, ok := domain.StyleByID("polaroid")
	if !ok {
		t.Fatal("polaroid style missing from catalog")
	}
	prompt := BuildPrompt(style, "", "", "")
	if !strings.HasPrefix(prompt, "Style: Retro Polaroid\n") {
		t.Fatalf("prompt missing style header: %q", prompt)
	}
	if !strings.Contains(prompt, style.Prompt) {
		t.Fatal("prompt missing the catalog fragment")
	}
}

func TestBuildPromptCustomOverridesStyle(t *testing.T) {
	style, _ := domain.StyleByID("neon")
	prompt := BuildPrompt(style, "paint it like a fresco", "", "")
	if prompt != "paint it like a fresco" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestBuildPromptAppendsNotesAndLocale(t *testing.T) {
	style, _ := domain.StyleByID("figurine")
	prompt := BuildPrompt(style, "", " keep the glasses ", "id-ID")
	if !strings.Contains(prompt, "\nAdditional direction: keep the glasses") {
		t.Fatalf("notes missing: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "\nLocale: id-ID") {
		t.Fatalf("locale missing: %q", prompt)
	}
}

func TestBuildPromptFallback(t *testing.T) {
	prompt := BuildPrompt(domain.Style{}, "", "", "")
	if prompt == "" {
		t.Fatal("empty prompt for empty inputs")
	}
}

func TestEnhanceInstructionNamesTier(t *testing.T) {
	for _, tier := range []Tier{TierHD, Tier2K, Tier4K} {
		got := enhanceInstruction(tier)
		if !strings.Contains(got, string(tier)) {
			t.Fatalf("instruction for %s does not mention the tier: %q", tier, got)
		}
		if !strings.Contains(got, "Return only the enhanced image.") {
			t.Fatalf("instruction lost its closing directive: %q", got)
		}
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]struct {
		tier Tier
		ok   bool
	}{
		"HD":   {TierHD, true},
		" hd ": {TierHD, true},
		"2k":   {Tier2K, true},
		"4K":   {Tier4K, true},
		"8K":   {"", false},
		"":     {"", false},
	}
	for raw, want := range cases {
		tier, ok := ParseTier(raw)
		if ok != want.ok || tier != want.tier {
			t.Fatalf("ParseTier(%q) = (%s, %v), want (%s, %v)", raw, tier, ok, want.tier, want.ok)
		}
	}
}
