// Package core defines the core interfaces and types for the LLM gateway.
package core

import (
	"context"
)

// ChunkStream is a pull-based sequence of completion chunks.
//
// Recv blocks until the next chunk is decoded. It returns io.EOF when the
// stream ends normally and a *GatewayError when it fails; a failed stream
// keeps returning the same error. Close releases the underlying connection
// and may be called at any time, including while Recv is blocked.
type ChunkStream interface {
	Recv() (*ChatChunk, error)
	Close() error
}

// Provider defines the interface for LLM provider clients
type Provider interface {
	// ChatCompletion executes a chat completion request and waits for the full response
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion starts a streaming completion (caller must close the stream)
	StreamChatCompletion(ctx context.Context, req *ChatRequest) (ChunkStream, error)
}
