package streaming

import (
	"context"
	"errors"
	"io"
	"iter"
	"sort"
	"strings"

	"llmgate/internal/core"
)

// All adapts s to a range-over-func sequence for blocking consumers.
// The stream is closed when the loop ends, including on break. A terminal
// error is yielded once as the last element; normal termination yields nothing.
func All(s core.ChunkStream) iter.Seq2[*core.ChatChunk, error] {
	return func(yield func(*core.ChatChunk, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Event is one element delivered by Events.
type Event struct {
	Chunk *core.ChatChunk
	Err   error
}

// Events pulls s on its own goroutine and delivers each chunk over an
// unbuffered channel, so the next event is only read once the previous one
// has been received. The channel is closed after the last event.
//
// Cancelling ctx closes the stream and the channel.
func Events(ctx context.Context, s core.ChunkStream) <-chan Event {
	out := make(chan Event)
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })

	go func() {
		defer close(out)
		defer stop()
		defer s.Close()

		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- Event{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Event{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Collect drains s into a single response. Content is concatenated per
// choice index, the last non-empty finish reason wins and usage is taken
// from whichever chunk carried it. The stream is always closed.
func Collect(s core.ChunkStream) (*core.ChatResponse, error) {
	type acc struct {
		role    core.Role
		content strings.Builder
		finish  core.FinishReason
	}

	resp := &core.ChatResponse{Object: "chat.completion"}
	choices := make(map[int]*acc)
	var usage *core.Usage

	for chunk, err := range All(s) {
		if err != nil {
			return nil, err
		}
		if resp.ID == "" {
			resp.ID = chunk.ID
			resp.Created = chunk.Created
			resp.Model = chunk.Model
			resp.Provider = chunk.Provider
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, c := range chunk.Choices {
			a, ok := choices[c.Index]
			if !ok {
				a = &acc{role: core.RoleAssistant}
				choices[c.Index] = a
			}
			if c.Delta.Role != "" {
				a.role = c.Delta.Role
			}
			a.content.WriteString(c.Delta.Text())
			if c.FinishReason != "" {
				a.finish = c.FinishReason
			}
		}
	}

	indexes := make([]int, 0, len(choices))
	for i := range choices {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		a := choices[i]
		resp.Choices = append(resp.Choices, core.Choice{
			Index:        i,
			Message:      core.Message{Role: a.role, Content: a.content.String()},
			FinishReason: a.finish,
		})
	}
	if usage != nil {
		resp.Usage = *usage
	}
	resp.Usage.Normalize()
	return resp, nil
}
