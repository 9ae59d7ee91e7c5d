package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompletePrependsSystemPromptAndFixedParameters(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Hello hive  "}},
			},
		})
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{
		BaseURL:     srv.URL + "/v1",
		APIKey:      "sk-test",
		Model:       "gpt-4o-mini",
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	history := []Message{
		{Role: "user", Content: "how are my bees?"},
		{Role: "assistant", Content: "thriving"},
		{Role: "user", Content: "and the queen?"},
	}
	text, err := relay.Complete(context.Background(), "You are a beekeeping assistant.", history)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Hello hive" {
		t.Fatalf("expected trimmed assistant text, got %q", text)
	}
	if captured.Model != "gpt-4o-mini" || captured.Temperature != 0.4 || captured.MaxTokens != 512 {
		t.Fatalf("generation parameters not forwarded: %+v", captured)
	}
	if len(captured.Messages) != 4 {
		t.Fatalf("expected system + 3 history messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Content != "how are my bees?" {
		t.Fatalf("system prompt not prepended: %+v", captured.Messages)
	}
}

func TestCompleteSurfacesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	_, err = relay.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", upstream.Status)
	}
	if upstream.Message != "rate limited" {
		t.Fatalf("expected upstream message, got %q", upstream.Message)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	relay, err := NewRelay(RelayConfig{BaseURL: srv.URL, Model: "m"})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	if _, err := relay.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
