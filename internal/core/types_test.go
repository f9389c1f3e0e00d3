package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestChatRequest_WireOmitsUnsetFields(t *testing.T) {
	req := &ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"temperature", "max_tokens", "top_p", "frequency_penalty", "presence_penalty", "stop", "n", "stream"} {
		if _, ok := fields[key]; ok {
			t.Errorf("unset field %q leaked into payload: %s", key, data)
		}
	}
	if len(fields) != 2 {
		t.Errorf("expected only model and messages, got %s", data)
	}
}

func TestChatRequest_WireRoundTripKeepsSetFields(t *testing.T) {
	req := &ChatRequest{
		Model:            "gpt-4o",
		Messages:         []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}},
		Temperature:      ptr(0.0),
		MaxTokens:        ptr(16),
		TopP:             ptr(0.9),
		FrequencyPenalty: ptr(-0.5),
		PresencePenalty:  ptr(0.25),
		Stop:             []string{"\n\n"},
		N:                ptr(2),
		Stream:           ptr(false),
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ChatRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(req, &decoded) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", decoded, *req)
	}
	// An explicit zero temperature and an explicit false stream must survive.
	if decoded.Temperature == nil || *decoded.Temperature != 0 {
		t.Error("explicit temperature 0 was dropped")
	}
	if decoded.Stream == nil || *decoded.Stream {
		t.Error("explicit stream=false was dropped")
	}
}

func TestChatRequest_Validate(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hi"}}

	tests := []struct {
		name    string
		req     *ChatRequest
		wantErr bool
	}{
		{"valid", &ChatRequest{Model: "openai/gpt-4o", Messages: msgs}, false},
		{"nil request", nil, true},
		{"missing prefix", &ChatRequest{Model: "gpt-4o", Messages: msgs}, true},
		{"empty messages", &ChatRequest{Model: "openai/gpt-4o"}, true},
		{"unknown role", &ChatRequest{Model: "openai/gpt-4o", Messages: []Message{{Role: "robot", Content: "x"}}}, true},
		{"zero max tokens", &ChatRequest{Model: "openai/gpt-4o", Messages: msgs, MaxTokens: ptr(0)}, true},
		{"zero n", &ChatRequest{Model: "openai/gpt-4o", Messages: msgs, N: ptr(0)}, true},
		{"extra param shadows field", &ChatRequest{Model: "openai/gpt-4o", Messages: msgs, ExtraParams: map[string]any{"model": "x"}}, true},
		{"extra param allowed", &ChatRequest{Model: "openai/gpt-4o", Messages: msgs, ExtraParams: map[string]any{"seed": 7}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !IsErrorType(err, ErrorTypeInvalidRequest) {
					t.Errorf("expected invalid request error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestChatRequest_CopiesDoNotMutate(t *testing.T) {
	req := &ChatRequest{Model: "openai/gpt-4o", Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	streamed := req.WithModel("gpt-4o").WithStreaming()

	if req.Model != "openai/gpt-4o" || req.Stream != nil {
		t.Errorf("original request mutated: %+v", req)
	}
	if streamed.Model != "gpt-4o" || !streamed.IsStreaming() {
		t.Errorf("copy not updated: %+v", streamed)
	}
}

func TestFinishReason_JSON(t *testing.T) {
	var choice StreamChoice
	if err := json.Unmarshal([]byte(`{"index":0,"delta":{},"finish_reason":null}`), &choice); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if choice.FinishReason != "" {
		t.Errorf("FinishReason = %q, want empty", choice.FinishReason)
	}

	out, err := json.Marshal(choice)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"index":0,"delta":{},"finish_reason":null}` {
		t.Errorf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"index":1,"delta":{"content":""},"finish_reason":"length"}`), &choice); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if choice.FinishReason != FinishReasonLength {
		t.Errorf("FinishReason = %q, want %q", choice.FinishReason, FinishReasonLength)
	}
	if choice.Delta.Content == nil || *choice.Delta.Content != "" {
		t.Error("empty delta content should decode as a present empty string")
	}
}

func TestFinishReason_RejectsNonString(t *testing.T) {
	var f FinishReason
	if err := json.Unmarshal([]byte(`42`), &f); err == nil {
		t.Error("expected error for numeric finish_reason")
	}
}

func TestUsage_Normalize(t *testing.T) {
	u := Usage{PromptTokens: 7, CompletionTokens: 5, TotalTokens: 99}
	u.Normalize()
	if u.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", u.TotalTokens)
	}
}

func TestDelta_Text(t *testing.T) {
	if (Delta{}).Text() != "" {
		t.Error("absent content should read as empty")
	}
	if (Delta{Content: ptr("Hi")}).Text() != "Hi" {
		t.Error("content not returned")
	}
}

func TestErrUnknownProviderIsSentinel(t *testing.T) {
	if errors.Is(NewInvalidRequestError("x", nil), ErrUnknownProvider) {
		t.Error("plain invalid request must not match ErrUnknownProvider")
	}
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		responseOK bool
		chunkOK    bool
	}{
		{"full response", `{"id":"c","choices":[],"usage":{"prompt_tokens":1}}`, true, true},
		{"minimal chunk", `{"id":"x","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`, false, true},
		{"null", `null`, false, false},
		{"number", `42`, false, false},
		{"empty object", `{}`, false, false},
		{"choices string", `{"choices":"x"}`, false, false},
		{"usage not an object", `{"choices":[],"usage":3}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckResponseShape([]byte(tt.data)); (err == nil) != tt.responseOK {
				t.Errorf("CheckResponseShape() = %v, want ok=%v", err, tt.responseOK)
			}
			if err := CheckChunkShape([]byte(tt.data)); (err == nil) != tt.chunkOK {
				t.Errorf("CheckChunkShape() = %v, want ok=%v", err, tt.chunkOK)
			}
		})
	}
}
