package image

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/domain"
)

var titler = cases.Title(language.Und)

// BuildPrompt assembles the final model prompt from a catalog style (or a
// custom prompt) plus optional user notes and a locale hint.
func BuildPrompt(style domain.Style, custom, notes, locale string) string {
	var b strings.Builder
	if custom = strings.TrimSpace(custom); custom != "" {
		b.WriteString(custom)
	} else {
		if style.Name != "" {
			b.WriteString("Style: ")
			b.WriteString(titler.String(style.Name))
			b.WriteString("\n")
		}
		b.WriteString(style.Prompt)
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		b.WriteString("\nAdditional direction: ")
		b.WriteString(notes)
	}
	if locale = strings.TrimSpace(locale); locale != "" {
		b.WriteString("\nLocale: ")
		b.WriteString(locale)
	}
	if b.Len() == 0 {
		b.WriteString("Restyle the reference photos")
	}
	return b.String()
}

// enhanceInstruction builds the fixed instructional prompt parameterized only
// by the tier name.
func enhanceInstruction(tier Tier) string {
	return fmt.Sprintf(
		"Enhance this image to %s quality. Upscale the resolution, sharpen fine detail, "+
			"remove compression artifacts and noise, and keep the composition, colors and "+
			"subject exactly as they are. Return only the enhanced image.",
		tier,
	)
}
