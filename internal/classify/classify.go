// Package classify maps arbitrary provider failures into a fixed set of
// user-facing causes. Classification is a read-only mapping; it never mutates
// state and never retries.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"studio/internal/domain"
	"studio/internal/providers/genai"
)

// Kind identifies a recognized failure cause.
type Kind string

const (
	KindInvalidCredential Kind = "invalid_credential"
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindSafetyBlocked     Kind = "safety_blocked"
	KindModelRefused      Kind = "model_refused"
	KindModelError        Kind = "model_error"
	KindNoCredential      Kind = "no_credential"
	KindTransportFailure  Kind = "transport_failure"
	KindUnclassified      Kind = "unclassified"
)

// Cause is the classification of one failure. QuotaExhausted doubles as the
// trigger condition for the batch abort rule.
type Cause struct {
	Kind           Kind
	Message        string
	QuotaExhausted bool
}

// Classify resolves a failure to its most actionable cause. Causes are
// checked in a fixed priority order and the first match wins: an error whose
// raw text carries both credential and network markers must resolve to the
// credential cause, since that is the one the user can act on.
func Classify(err error) Cause {
	if err == nil {
		return Cause{Kind: KindUnclassified, Message: "unknown failure"}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	var apiErr *genai.APIError
	isAPI := errors.As(err, &apiErr)

	// 1. Invalid or expired credential.
	if isAPI && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403 ||
		apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED") {
		return Cause{Kind: KindInvalidCredential, Message: invalidKeyMessage}
	}
	if containsAny(lower, "api key not valid", "api_key_invalid", "invalid api key",
		"api key expired", "unauthenticated", "permission denied", "permission_denied") {
		return Cause{Kind: KindInvalidCredential, Message: invalidKeyMessage}
	}

	// 2. Quota exhaustion. Distinguished from (1); shared vs. personal is
	// decided by the caller, which knows which credential was in effect.
	if isAPI && (apiErr.StatusCode == 429 || apiErr.Status == "RESOURCE_EXHAUSTED") {
		return Cause{Kind: KindQuotaExhausted, Message: quotaMessage, QuotaExhausted: true}
	}
	if containsAny(lower, "resource_exhausted", "resource exhausted", "quota",
		"rate limit", "too many requests") {
		return Cause{Kind: KindQuotaExhausted, Message: quotaMessage, QuotaExhausted: true}
	}

	// 3. Safety block.
	var safetyErr *genai.SafetyError
	if errors.As(err, &safetyErr) || containsAny(lower, "safety", "blocked") {
		return Cause{Kind: KindSafetyBlocked, Message: safetyMessage}
	}

	// 4. Model refusal or model-reported error.
	var modelErr *genai.ModelError
	if errors.As(err, &modelErr) {
		text := strings.TrimSpace(modelErr.Text)
		if text == "" {
			return Cause{Kind: KindModelError, Message: "The model returned no image. Try again or adjust the prompt."}
		}
		if looksLikeRefusal(text) {
			return Cause{Kind: KindModelRefused, Message: "The model declined this request: " + text}
		}
		return Cause{Kind: KindModelError, Message: text}
	}

	// 5. Missing credential entirely.
	if errors.Is(err, domain.ErrNoCredential) || containsAny(lower, "api key is missing", "no api key") {
		return Cause{Kind: KindNoCredential, Message: noKeyMessage}
	}

	// 6. Network/transport failure.
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		containsAny(lower, "connection refused", "connection reset", "timeout",
			"deadline exceeded", "no such host", "network", "unexpected eof") {
		return Cause{Kind: KindTransportFailure, Message: transportMessage}
	}

	// 7. A structured error payload embedded in an opaque message.
	if msg := embeddedErrorMessage(raw); msg != "" {
		return Cause{Kind: KindUnclassified, Message: msg}
	}

	// 8. Fallback, keeping the raw text for diagnostics.
	return Cause{Kind: KindUnclassified, Message: fmt.Sprintf("Image generation failed: %s", raw)}
}

const (
	invalidKeyMessage = "The API key is invalid or expired. Check the key and try again."
	quotaMessage      = "The usage quota for the active API key is exhausted."
	safetyMessage     = "The request was blocked by safety filters. Adjust the photos or the prompt and retry."
	noKeyMessage      = "No API key is configured. Supply your own key or set GEMINI_API_KEY."
	transportMessage  = "Could not reach the image service. Check your connection and try again."
)

var refusalMarkers = []string{
	"i cannot", "i can't", "i can not", "i'm unable", "i am unable",
	"unable to", "cannot assist", "cannot create", "cannot generate",
	"not able to", "won't be able",
}

func looksLikeRefusal(text string) bool {
	return containsAny(strings.ToLower(text), refusalMarkers...)
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

type embeddedError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// embeddedErrorMessage attempts to locate and parse a JSON error fragment
// inside an otherwise opaque message.
func embeddedErrorMessage(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(raw, "}")
	if end <= start {
		return ""
	}
	var parsed embeddedError
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Error.Message)
}
