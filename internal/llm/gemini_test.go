package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiCompleteUsesJSONMimeType(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"SELECT 1;"}]}}]}`))
	}))
	defer srv.Close()

	model, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	resp, err := model.Complete(context.Background(), Request{
		Task:   TaskExtractFilter,
		System: "be strict",
		Prompt: "question",
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "SELECT 1;" || resp.Provider != providerGemini {
		t.Fatalf("Complete() = %#v", resp)
	}
	generationConfig, ok := body["generationConfig"].(map[string]any)
	if !ok || generationConfig["responseMimeType"] != "application/json" {
		t.Fatalf("generationConfig = %#v", body["generationConfig"])
	}
}

func TestGeminiServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	model, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	if _, err := model.Complete(context.Background(), Request{Prompt: "q"}); !IsTransient(err) {
		t.Fatalf("Complete() error = %v, want transient", err)
	}
}
