package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"studio/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client, err := NewClient(Options{BaseURL: ts.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client, ts
}

func imageResponse(data []byte, mime string) geminiGenerateContentResponse {
	return geminiGenerateContentResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{
				InlineData: &geminiInlineData{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(data),
				},
			}}},
		}},
	}
}

func TestGenerateImage(t *testing.T) {
	want := []byte{0x89, 0x50, 0x4e, 0x47}
	var captured geminiGenerateContentRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "user-key" {
			t.Fatalf("unexpected key: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(imageResponse(want, "image/png"))
	})

	images := []Blob{
		{MIME: "image/jpeg", Data: []byte("first")},
		{MIME: "image/png", Data: []byte("second")},
	}
	blob, err := client.GenerateImage(context.Background(), "user-key", images, "make it retro")
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if string(blob.Data) != string(want) {
		t.Fatalf("unexpected payload: %v", blob.Data)
	}
	if blob.MIME != "image/png" {
		t.Fatalf("unexpected mime: %s", blob.MIME)
	}

	if len(captured.Contents) != 1 {
		t.Fatalf("unexpected contents length: %d", len(captured.Contents))
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("expected 2 image parts + 1 text part, got %d", len(parts))
	}
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/jpeg" {
		t.Fatalf("first part mismatch: %+v", parts[0])
	}
	if parts[2].Text != "make it retro" {
		t.Fatalf("prompt mismatch: %q", parts[2].Text)
	}
}

func TestGenerateImageFallsBackToDefaultKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "env-key" {
			t.Fatalf("unexpected key: %q", got)
		}
		_ = json.NewEncoder(w).Encode(imageResponse([]byte("img"), "image/png"))
	}))
	defer ts.Close()

	client, err := NewClient(Options{APIKey: "env-key", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if _, err := client.GenerateImage(context.Background(), "", []Blob{{Data: []byte("x")}}, "p"); err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
}

func TestGenerateImageNoCredential(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "http://unused.invalid"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	_, err = client.GenerateImage(context.Background(), "", []Blob{{Data: []byte("x")}}, "p")
	if !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestGenerateImageSafetyFinish(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{FinishReason: "IMAGE_SAFETY"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := client.GenerateImage(context.Background(), "k", []Blob{{Data: []byte("x")}}, "p")
	var safetyErr *SafetyError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyError, got %v", err)
	}
	if safetyErr.Reason != "IMAGE_SAFETY" {
		t.Fatalf("unexpected reason: %s", safetyErr.Reason)
	}
}

func TestGenerateImagePromptBlocked(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := geminiGenerateContentResponse{
			PromptFeedback: &geminiPromptFeedback{BlockReason: "SAFETY"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := client.GenerateImage(context.Background(), "k", []Blob{{Data: []byte("x")}}, "p")
	var safetyErr *SafetyError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyError, got %v", err)
	}
}

func TestGenerateImageNoImageCarriesModelText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "I cannot work with this photo."}}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := client.GenerateImage(context.Background(), "k", []Blob{{Data: []byte("x")}}, "p")
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected ModelError, got %v", err)
	}
	if modelErr.Text != "I cannot work with this photo." {
		t.Fatalf("unexpected text: %q", modelErr.Text)
	}
}

func TestGenerateImageAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`))
	})

	_, err := client.GenerateImage(context.Background(), "k", []Blob{{Data: []byte("x")}}, "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestValidateKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.URL.Query().Get("key"); got != "candidate" {
			t.Fatalf("unexpected key: %q", got)
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	})

	if err := client.ValidateKey(context.Background(), "candidate"); err != nil {
		t.Fatalf("ValidateKey error: %v", err)
	}
}

func TestValidateKeyRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"API key not valid. Please pass a valid API key."}}`))
	})

	err := client.ValidateKey(context.Background(), "bogus")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestValidateKeyEmpty(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if err := client.ValidateKey(context.Background(), " "); !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}
