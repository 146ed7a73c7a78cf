package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompleteSendsJSONMode(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"category\":[],\"merchant\":[]}"}}]}`))
	}))
	defer srv.Close()

	model, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "key-1", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	resp, err := model.Complete(context.Background(), Request{
		Task:   TaskExtractFilter,
		System: "system",
		Prompt: "question",
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != `{"category":[],"merchant":[]}` || resp.Model != "gpt-test" {
		t.Fatalf("Complete() = %#v", resp)
	}
	format, ok := payload["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Fatalf("response_format = %#v", payload["response_format"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %#v", payload["messages"])
	}
}

func TestOpenAIClassifiesStatusErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", status)
	}))
	defer srv.Close()

	model, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	_, err = model.Complete(context.Background(), Request{Task: TaskGenerateSQL, Prompt: "q"})
	if !IsTransient(err) {
		t.Fatalf("Complete() error = %v, want transient", err)
	}

	status = http.StatusBadRequest
	_, err = model.Complete(context.Background(), Request{Task: TaskGenerateSQL, Prompt: "q"})
	if err == nil || IsTransient(err) {
		t.Fatalf("Complete() error = %v, want permanent error", err)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	model, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	if _, err := model.Complete(context.Background(), Request{Prompt: "q"}); err == nil {
		t.Fatal("expected empty choices error")
	}
}

func TestNewOpenAIRequiresSettings(t *testing.T) {
	cases := []OpenAIConfig{
		{APIKey: "k", Model: "m"},
		{BaseURL: "http://x", Model: "m"},
		{BaseURL: "http://x", APIKey: "k"},
	}
	for _, cfg := range cases {
		if _, err := NewOpenAI(cfg); err == nil {
			t.Fatalf("NewOpenAI(%#v) expected error", cfg)
		}
	}
}

func TestClassifyTransportKeepsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := classifyTransport(ctx, context.Canceled)
	if IsTransient(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("classifyTransport() = %v", err)
	}
}
