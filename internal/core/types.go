package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// FinishReason explains why a choice stopped generating.
// The empty value stands for JSON null.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"
)

// MarshalJSON encodes the empty reason as null.
func (f FinishReason) MarshalJSON() ([]byte, error) {
	if f == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(f))
}

// UnmarshalJSON accepts null as the empty reason.
func (f *FinishReason) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = FinishReason(s)
	return nil
}

// Message represents a single message in the chat
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request.
// Optional sampling fields are pointers so that unset values are omitted
// from the wire payload instead of being sent as zero or null.
type ChatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      *float64  `json:"temperature,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	Stop             []string  `json:"stop,omitempty"`
	N                *int      `json:"n,omitempty"`
	Stream           *bool     `json:"stream,omitempty"`

	// ExtraParams are provider-specific fields merged into the wire payload.
	// They may not shadow any of the fields above.
	ExtraParams map[string]any `json:"-"`
}

// IsStreaming reports whether the caller asked for a chunk sequence.
func (r *ChatRequest) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// WithModel returns a shallow copy of the request addressed to model.
// The caller's request is left untouched.
func (r *ChatRequest) WithModel(model string) *ChatRequest {
	cp := *r
	cp.Model = model
	return &cp
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
func (r *ChatRequest) WithStreaming() *ChatRequest {
	cp := *r
	stream := true
	cp.Stream = &stream
	return &cp
}

// reservedParams are the wire fields ExtraParams may not override.
var reservedParams = map[string]struct{}{
	"model":             {},
	"messages":          {},
	"temperature":       {},
	"max_tokens":        {},
	"top_p":             {},
	"frequency_penalty": {},
	"presence_penalty":  {},
	"stop":              {},
	"n":                 {},
	"stream":            {},
}

// IsRequestField reports whether key names a ChatRequest wire field.
func IsRequestField(key string) bool {
	_, ok := reservedParams[key]
	return ok
}

// Validate checks the request invariants that do not depend on the registry:
// a provider prefix, a non-empty conversation and well-formed optional fields.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return NewInvalidRequestError("request is required", nil)
	}
	if !strings.Contains(r.Model, "/") {
		return NewInvalidRequestError(fmt.Sprintf("model must be of the form <provider>/<model>, got %q", r.Model), nil)
	}
	if len(r.Messages) == 0 {
		return NewInvalidRequestError("messages must not be empty", nil)
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role), nil)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return NewInvalidRequestError("max_tokens must be at least 1", nil)
	}
	if r.N != nil && *r.N < 1 {
		return NewInvalidRequestError("n must be at least 1", nil)
	}
	for key := range r.ExtraParams {
		if _, ok := reservedParams[key]; ok {
			return NewInvalidRequestError(fmt.Sprintf("extra parameter %q shadows a request field", key), nil)
		}
	}
	return nil
}

// ChatResponse represents the chat completion response
type ChatResponse struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Model    string   `json:"model"`
	Provider string   `json:"provider,omitempty"`
	Choices  []Choice `json:"choices"`
	Usage    Usage    `json:"usage"`
}

// Choice represents a single completion choice
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// CheckResponseShape reports why data is not a chat completion body. The body
// must be an object with a choices array and a usage object.
func CheckResponseShape(data []byte) error {
	if err := CheckChunkShape(data); err != nil {
		return err
	}
	if !gjson.GetBytes(data, "usage").IsObject() {
		return errors.New(`missing "usage" object`)
	}
	return nil
}

// CheckChunkShape reports why data is not a stream chunk: an object with a
// choices array.
func CheckChunkShape(data []byte) error {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return errors.New("payload is not a JSON object")
	}
	if !root.Get("choices").IsArray() {
		return errors.New(`missing "choices" array`)
	}
	return nil
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalize enforces total = prompt + completion.
func (u *Usage) Normalize() {
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

// ChatChunk is one event of a streamed completion
type ChatChunk struct {
	ID       string         `json:"id"`
	Object   string         `json:"object"`
	Created  int64          `json:"created"`
	Model    string         `json:"model"`
	Provider string         `json:"provider,omitempty"`
	Choices  []StreamChoice `json:"choices"`
	Usage    *Usage         `json:"usage,omitempty"`
}

// StreamChoice carries the partial message for one choice index
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        Delta        `json:"delta"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Delta is a partial message. Content is a pointer so an empty string
// can be told apart from an absent field.
type Delta struct {
	Role    Role    `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Text returns the delta content, or "" when absent.
func (d Delta) Text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// ProviderInfo describes a registered provider key
type ProviderInfo struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

// ProvidersResponse is returned by the provider listing endpoint
type ProvidersResponse struct {
	Object string         `json:"object"`
	Data   []ProviderInfo `json:"data"`
}
