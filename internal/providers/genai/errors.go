package genai

import "fmt"

// APIError is a structured failure reported by the Gemini API itself.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini status %d (%s)", e.StatusCode, e.Status)
}

// SafetyError indicates the request was blocked by the model's safety filters.
type SafetyError struct {
	Reason string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("request blocked for safety reasons: %s", e.Reason)
}

// ModelError indicates the model responded without an image payload. Text
// carries whatever free-text explanation the model returned.
type ModelError struct {
	Text string
}

func (e *ModelError) Error() string {
	if e.Text == "" {
		return "model returned no image"
	}
	return fmt.Sprintf("model returned no image: %s", e.Text)
}
