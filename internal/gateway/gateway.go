// Package gateway is the single entry point for chat completions. It routes a
// request to a provider client by the prefix of its model name and returns
// either a full response or a chunk stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"llmgate/internal/core"
)

// ProviderLookup resolves a provider key to its client.
// *providers.Registry satisfies it.
type ProviderLookup interface {
	Lookup(key string) (core.Provider, bool)
}

// Result is either a *ResponseResult or a *StreamResult.
type Result interface {
	isResult()
}

// ResponseResult holds a buffered completion.
type ResponseResult struct {
	Response *core.ChatResponse
}

// StreamResult holds a live chunk stream. The caller owns it and must close it.
type StreamResult struct {
	Stream core.ChunkStream
}

func (*ResponseResult) isResult() {}
func (*StreamResult) isResult()   {}

// Release closes the stream held by a result, if any.
func Release(r Result) {
	if sr, ok := r.(*StreamResult); ok && sr.Stream != nil {
		_ = sr.Stream.Close()
	}
}

// Gateway dispatches requests to provider clients. It holds no per-call
// state and is safe for concurrent use.
type Gateway struct {
	providers ProviderLookup
}

// New creates a gateway over an already-built provider lookup.
func New(providers ProviderLookup) (*Gateway, error) {
	if providers == nil {
		return nil, errors.New("provider lookup cannot be nil")
	}
	return &Gateway{providers: providers}, nil
}

// ResolveModel splits model on its first "/" into the provider key and the
// provider-native model name, and checks that the key is registered.
func (g *Gateway) ResolveModel(model string) (core.Provider, string, string, error) {
	key, native, ok := strings.Cut(model, "/")
	if !ok {
		return nil, "", "", core.NewInvalidRequestError(fmt.Sprintf("model must be of the form <provider>/<model>, got %q", model), nil)
	}
	if key == "" || native == "" {
		return nil, "", "", core.NewInvalidRequestError(fmt.Sprintf("model %q has an empty provider or model name", model), nil)
	}
	p, found := g.providers.Lookup(key)
	if !found {
		return nil, "", "", core.NewUnknownProviderError(key)
	}
	return p, key, native, nil
}

// Complete validates and routes req. A request with stream=true yields a
// *StreamResult; anything else yields a *ResponseResult. The caller's
// request is not modified.
func (g *Gateway) Complete(ctx context.Context, req *core.ChatRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	provider, key, native, err := g.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	upstream := req.WithModel(native)

	slog.DebugContext(ctx, "dispatching completion",
		"provider", key,
		"model", native,
		"stream", req.IsStreaming(),
		"request_id", core.GetRequestID(ctx))

	if req.IsStreaming() {
		stream, err := provider.StreamChatCompletion(ctx, upstream)
		if err != nil {
			return nil, err
		}
		return &StreamResult{Stream: stream}, nil
	}

	resp, err := provider.ChatCompletion(ctx, upstream)
	if err != nil {
		return nil, err
	}
	return &ResponseResult{Response: resp}, nil
}

// ChatCompletion is Complete for callers that want a buffered response.
// A stream=true flag on req is ignored.
func (g *Gateway) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if req != nil && req.Stream != nil {
		req = req.WithModel(req.Model)
		req.Stream = nil
	}
	res, err := g.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.(*ResponseResult).Response, nil
}

// StreamChatCompletion is Complete for callers that want a chunk stream.
func (g *Gateway) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	if req != nil {
		req = req.WithStreaming()
	}
	res, err := g.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.(*StreamResult).Stream, nil
}
