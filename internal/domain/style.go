package domain

import "strings"

// Style pairs a catalog identifier with the fixed prompt fragment sent to the
// model. The catalog is read-only configuration defined at process start.
type Style struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

var styles = []Style{
	{
		ID:   "polaroid",
		Name: "Retro Polaroid",
		Prompt: "Restyle the subject of the reference photos as an authentic vintage Polaroid " +
			"snapshot: slightly washed-out colors, soft film grain, a warm flash glow and the " +
			"classic white instant-film frame. Keep the subject's face and pose recognizable.",
	},
	{
		ID:   "figurine",
		Name: "Collectible Figurine",
		Prompt: "Turn the subject of the reference photos into a detailed 1/7 scale collectible " +
			"figurine standing on a round display base, photographed on a studio desk with soft " +
			"lighting. Glossy PVC finish, accurate outfit and hair, shallow depth of field.",
	},
	{
		ID:   "neon",
		Name: "Neon City",
		Prompt: "Reimagine the subject of the reference photos in a rain-slicked neon city at " +
			"night: cyan and magenta signage reflections, cinematic rim lighting, light fog. " +
			"Preserve the subject's likeness and clothing silhouette.",
	},
}

// Styles returns the full style catalog.
func Styles() []Style {
	out := make([]Style, len(styles))
	copy(out, styles)
	return out
}

// StyleByID looks up a catalog style by its identifier.
func StyleByID(id string) (Style, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range styles {
		if s.ID == id {
			return s, true
		}
	}
	return Style{}, false
}
