package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"llmgate/internal/core"
	"llmgate/internal/gateway"
	"llmgate/internal/streaming"
)

type options struct {
	Model       string
	Prompt      string
	System      string
	Stream      bool
	Count       int
	Temperature float64
	MaxTokens   int
}

func (o options) request() *core.ChatRequest {
	req := &core.ChatRequest{Model: o.Model}
	if o.System != "" {
		req.Messages = append(req.Messages, core.Message{Role: core.RoleSystem, Content: o.System})
	}
	req.Messages = append(req.Messages, core.Message{Role: core.RoleUser, Content: o.Prompt})
	if o.Temperature >= 0 {
		t := o.Temperature
		req.Temperature = &t
	}
	if o.MaxTokens > 0 {
		m := o.MaxTokens
		req.MaxTokens = &m
	}
	if o.Stream {
		req = req.WithStreaming()
	}
	return req
}

// run sends the prompt. A single streamed completion is printed as it
// arrives; with -n above one every completion runs concurrently and the
// outputs are printed in order once all have finished.
func run(ctx context.Context, gw *gateway.Gateway, opts options, out io.Writer) error {
	if opts.Prompt == "" {
		return errors.New("prompt is empty")
	}
	if opts.Count < 1 {
		opts.Count = 1
	}

	if opts.Count == 1 && opts.Stream {
		res, err := gw.Complete(ctx, opts.request())
		if err != nil {
			return err
		}
		return printStream(out, res.(*gateway.StreamResult).Stream)
	}

	futures := make([]*gateway.Future, opts.Count)
	for i := range futures {
		futures[i] = gw.CompleteAsync(ctx, opts.request())
	}

	texts := make([]string, opts.Count)
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			res, err := f.Await(gctx)
			if err != nil {
				return fmt.Errorf("completion %d: %w", i+1, err)
			}
			text, err := resultText(res)
			if err != nil {
				return fmt.Errorf("completion %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		for _, f := range futures {
			f.Cancel()
		}
		return err
	}

	for i, text := range texts {
		if opts.Count > 1 {
			fmt.Fprintf(out, "--- %d ---\n", i+1)
		}
		fmt.Fprintln(out, text)
	}
	return nil
}

func resultText(res gateway.Result) (string, error) {
	var resp *core.ChatResponse
	switch r := res.(type) {
	case *gateway.ResponseResult:
		resp = r.Response
	case *gateway.StreamResult:
		collected, err := streaming.Collect(r.Stream)
		if err != nil {
			return "", err
		}
		resp = collected
	default:
		return "", fmt.Errorf("unexpected result type %T", res)
	}

	parts := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		parts = append(parts, c.Message.Content)
	}
	return strings.Join(parts, "\n"), nil
}

func printStream(out io.Writer, stream core.ChunkStream) error {
	for chunk, err := range streaming.All(stream) {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		for _, c := range chunk.Choices {
			if c.Index == 0 {
				fmt.Fprint(out, c.Delta.Text())
			}
		}
	}
	fmt.Fprintln(out)
	return nil
}
