package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/vibejournal/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		if _, err := convertMessage(llm.Message{Role: role, Content: "x"}); err != nil {
			t.Errorf("convertMessage(%s): %v", role, err)
		}
	}
	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestBuildParams_RequiresMessages(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "gpt-4o-mini")
	if _, err := p.buildParams(llm.CompletionRequest{SystemPrompt: "only system"}); err == nil {
		t.Error("expected error for empty messages")
	}
}

func TestProvider_Complete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Write about a small win today."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.UserPrompt("be kind", "give me a prompt"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Write about a small win today." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 19 {
		t.Errorf("TotalTokens = %d, want 19", resp.Usage.TotalTokens)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2 (system + user)", len(msgs))
	}
	if _, ok := body["response_format"]; ok {
		t.Errorf("response_format sent without JSONObject: %v", body["response_format"])
	}
	if p.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q", p.Model())
	}
}

func TestBuildParams_JSONObject(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "gpt-4o-mini")
	req := llm.UserPrompt("score it", "lovely day")
	req.JSONObject = true
	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("JSON object response format not set")
	}
}
