package gateway

import (
	"context"
	"sync"

	"llmgate/internal/core"
)

// Future is the pending result of CompleteAsync.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	result    Result
	err       error
	claimed   bool
	abandoned bool
}

// CompleteAsync starts Complete on its own goroutine and returns immediately.
// The call runs under a context derived from ctx; cancelling ctx or the
// future aborts it. A stream result keeps that context alive until the
// stream is closed.
func (g *Gateway) CompleteAsync(ctx context.Context, req *core.ChatRequest) *Future {
	callCtx, cancel := context.WithCancel(ctx)
	f := &Future{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go f.run(callCtx, func(ctx context.Context) (Result, error) {
		return g.Complete(ctx, req)
	})
	return f
}

func (f *Future) run(ctx context.Context, call func(context.Context) (Result, error)) {
	defer close(f.done)

	res, err := call(ctx)
	if sr, ok := res.(*StreamResult); ok && err == nil {
		sr.Stream = &cancelOnClose{ChunkStream: sr.Stream, cancel: f.cancel}
	} else {
		f.cancel()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abandoned {
		Release(res)
		f.err = context.Canceled
		return
	}
	f.result, f.err = res, err
}

// Done is closed when the call has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call finishes or ctx is done. A finished call is
// returned even when ctx is already done. If ctx ends first the
// call is cancelled, any stream it opens is closed, and ctx.Err() is returned.
// Await may be called more than once and returns the same result each time.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
	default:
		select {
		case <-f.done:
		case <-ctx.Done():
			f.Cancel()
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = true
	return f.result, f.err
}

// Cancel aborts a call whose result has not been claimed by Await.
// A stream that was already opened is closed. Cancel after a successful
// Await is a no-op, so a claimed stream stays usable.
func (f *Future) Cancel() {
	f.mu.Lock()
	if f.claimed || f.abandoned {
		f.mu.Unlock()
		return
	}
	f.abandoned = true
	if f.result != nil {
		Release(f.result)
		f.result, f.err = nil, context.Canceled
	}
	f.mu.Unlock()
	f.cancel()
}

// cancelOnClose releases the call context together with the stream.
type cancelOnClose struct {
	core.ChunkStream
	cancel context.CancelFunc
}

func (s *cancelOnClose) Close() error {
	err := s.ChunkStream.Close()
	s.cancel()
	return err
}
