// Package streaming decodes line-framed provider event streams into
// canonical completion chunks.
//
// A Stream is pull based: every Recv call reads from the connection only
// until one more event line is complete, so the caller controls the pace
// and nothing is buffered beyond the line being assembled.
package streaming

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"llmgate/internal/core"
)

const (
	defaultReadSize = 4 * 1024
	// DefaultMaxLineSize bounds a single event line.
	DefaultMaxLineSize = 8 * 1024 * 1024
)

// State is the decoder state.
type State int

const (
	// StateAwaitingEvent waits for a complete line in the buffer.
	StateAwaitingEvent State = iota
	// StateHaveLine holds a complete line that is being classified.
	StateHaveLine
	// StateEmit is entered while a data event is parsed and handed to the caller.
	StateEmit
	// StateDone is terminal: the sentinel was seen or the source ended.
	StateDone
	// StateFailed is terminal: a payload did not parse or the transport broke.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingEvent:
		return "awaiting_event"
	case StateHaveLine:
		return "have_line"
	case StateEmit:
		return "emit"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Framing describes a provider's event-stream protocol.
type Framing struct {
	// Delimiter terminates a line. A trailing '\r' is stripped as well.
	Delimiter byte
	// DataPrefix marks data events. One space after it is optional.
	DataPrefix string
	// Sentinel is the data payload that ends the stream.
	Sentinel string
}

// SSEFraming is the `data: <json>` / `data: [DONE]` framing used by OpenAI
// and compatible providers.
var SSEFraming = Framing{
	Delimiter:  '\n',
	DataPrefix: "data:",
	Sentinel:   "[DONE]",
}

// Summary is reported once per stream when it reaches a terminal state or is closed.
type Summary struct {
	Provider string
	Model    string
	State    State
	Chunks   int
	// Abandoned is set when the caller closed the stream before it finished.
	Abandoned bool
	Err       error
	Warning   *DecodeWarning
}

// Options configures a Stream.
type Options struct {
	Provider string
	Model    string
	Framing  Framing
	Logger   *slog.Logger
	// ReadSize is the size of each read from the source (default 4 KiB).
	ReadSize int
	// MaxLineSize fails the stream when a single line grows past it.
	MaxLineSize int
	// OnFinish, if set, is called exactly once with the stream outcome.
	OnFinish func(Summary)
}

// DecodeWarning records bytes left in the buffer when the source ended
// in the middle of a line. The stream still terminates normally.
type DecodeWarning struct {
	Trailing []byte
}

func (w *DecodeWarning) String() string {
	return "stream ended with an incomplete line (" + strconv.Itoa(len(w.Trailing)) + " bytes)"
}

// Stream turns a raw event-stream body into a sequence of chat chunks.
// It implements core.ChunkStream.
type Stream struct {
	body io.ReadCloser
	opts Options

	buf     []byte // unconsumed bytes, buf[start:] is pending
	start   int
	readBuf []byte
	eof     bool

	state   atomic.Int32
	err     error
	chunks  atomic.Int64
	warning *DecodeWarning

	closed     atomic.Bool
	closeOnce  sync.Once
	finishOnce sync.Once
}

var _ core.ChunkStream = (*Stream)(nil)

// New wraps body. The Stream owns body and closes it on Close.
func New(body io.ReadCloser, opts Options) *Stream {
	if opts.Framing.DataPrefix == "" {
		opts.Framing = SSEFraming
	}
	if opts.Framing.Delimiter == 0 {
		opts.Framing.Delimiter = '\n'
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Stream{
		body:    body,
		opts:    opts,
		readBuf: make([]byte, opts.ReadSize),
	}
}

// State returns the current decoder state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Stream) terminal() bool {
	st := s.State()
	return st == StateDone || st == StateFailed
}

// Warning returns the trailing-bytes warning, if the source ended mid-line.
func (s *Stream) Warning() *DecodeWarning {
	return s.warning
}

// Chunks returns the number of chunks yielded so far.
func (s *Stream) Chunks() int {
	return int(s.chunks.Load())
}

// Recv returns the next chunk. It returns io.EOF after the sentinel or the
// end of the source, the terminal error after a failure, and
// core.ErrStreamClosed once the stream has been closed.
func (s *Stream) Recv() (*core.ChatChunk, error) {
	if s.closed.Load() {
		s.discard()
		return nil, core.ErrStreamClosed
	}
	switch s.State() {
	case StateDone:
		return nil, io.EOF
	case StateFailed:
		return nil, s.err
	}

	for {
		line, ok := s.nextLine()
		if !ok {
			s.setState(StateAwaitingEvent)
			if s.eof {
				s.finishAtEOF()
				return nil, io.EOF
			}
			if len(s.buf)-s.start > s.opts.MaxLineSize {
				return nil, s.fail(core.NewDecodeError(s.opts.Provider, "stream event exceeds maximum line size", nil, nil))
			}
			if err := s.fill(); err != nil {
				if s.closed.Load() {
					s.discard()
					return nil, core.ErrStreamClosed
				}
				return nil, s.fail(core.NewTransportError(s.opts.Provider, "failed to read stream: "+err.Error(), err))
			}
			continue
		}

		s.setState(StateHaveLine)
		chunk, err := s.handleLine(line)
		if err != nil {
			return nil, s.fail(err)
		}
		if s.State() == StateDone {
			s.finish(nil)
			return nil, io.EOF
		}
		if chunk != nil {
			s.chunks.Add(1)
			s.setState(StateAwaitingEvent)
			return chunk, nil
		}
		s.setState(StateAwaitingEvent)
	}
}

// Close closes the underlying connection. It is idempotent and may be
// called while another goroutine is blocked in Recv.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.body.Close()
		if !s.terminal() {
			s.report(Summary{State: s.State(), Abandoned: true})
		}
	})
	return err
}

// nextLine returns the next complete line without its delimiter.
func (s *Stream) nextLine() ([]byte, bool) {
	pending := s.buf[s.start:]
	i := bytes.IndexByte(pending, s.opts.Framing.Delimiter)
	if i < 0 {
		return nil, false
	}
	s.start += i + 1
	return bytes.TrimSuffix(pending[:i], []byte{'\r'}), true
}

// fill appends the next read from the source to the buffer.
// This is the only place the stream blocks.
func (s *Stream) fill() error {
	if s.start > 0 {
		s.buf = append(s.buf[:0], s.buf[s.start:]...)
		s.start = 0
	}
	for {
		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.buf = append(s.buf, s.readBuf[:n]...)
		}
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
			return nil
		case err != nil:
			return err
		case n > 0:
			return nil
		}
	}
}

// handleLine classifies one line. It returns a chunk for data events, moves
// to StateDone on the sentinel and returns (nil, nil) for lines to skip.
func (s *Stream) handleLine(line []byte) (*core.ChatChunk, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}
	prefix := s.opts.Framing.DataPrefix
	if !bytes.HasPrefix(line, []byte(prefix)) {
		// event:, id:, retry: and ":" comments carry nothing for us.
		return nil, nil
	}
	payload := bytes.TrimSpace(line[len(prefix):])
	if len(payload) == 0 {
		return nil, nil
	}
	if string(payload) == s.opts.Framing.Sentinel {
		s.setState(StateDone)
		return nil, nil
	}

	s.setState(StateEmit)
	if errMsg := gjson.GetBytes(payload, "error"); errMsg.IsObject() {
		message := errMsg.Get("message").String()
		if message == "" {
			message = "provider reported an error mid-stream"
		}
		return nil, core.NewProviderError(s.opts.Provider, 0, message, bytes.Clone(payload))
	}

	var chunk core.ChatChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, core.NewDecodeError(s.opts.Provider, "failed to decode stream chunk: "+err.Error(), bytes.Clone(payload), err)
	}
	if err := core.CheckChunkShape(payload); err != nil {
		return nil, core.NewDecodeError(s.opts.Provider, "unexpected stream chunk: "+err.Error(), bytes.Clone(payload), err)
	}
	if chunk.Provider == "" {
		chunk.Provider = s.opts.Provider
	}
	return &chunk, nil
}

// finishAtEOF ends the stream when the source is exhausted without a sentinel.
func (s *Stream) finishAtEOF() {
	s.setState(StateDone)
	trailing := bytes.TrimSpace(s.buf[s.start:])
	if len(trailing) > 0 && !s.isSentinelLine(trailing) {
		s.warning = &DecodeWarning{Trailing: bytes.Clone(trailing)}
		s.opts.Logger.Warn("stream decode warning",
			"provider", s.opts.Provider,
			"model", s.opts.Model,
			"warning", s.warning.String(),
			"chunks", s.Chunks(),
		)
	}
	s.finish(nil)
}

func (s *Stream) isSentinelLine(line []byte) bool {
	prefix := []byte(s.opts.Framing.DataPrefix)
	if !bytes.HasPrefix(line, prefix) {
		return false
	}
	return string(bytes.TrimSpace(line[len(prefix):])) == s.opts.Framing.Sentinel
}

func (s *Stream) fail(err error) error {
	s.setState(StateFailed)
	if gatewayErr, ok := err.(*core.GatewayError); ok && s.opts.Model != "" {
		gatewayErr.WithModel(s.opts.Model)
	}
	s.err = err
	s.discard()
	s.finish(err)
	return err
}

func (s *Stream) finish(err error) {
	s.report(Summary{State: s.State(), Err: err, Warning: s.warning})
}

func (s *Stream) report(sum Summary) {
	s.finishOnce.Do(func() {
		if s.opts.OnFinish == nil {
			return
		}
		sum.Provider = s.opts.Provider
		sum.Model = s.opts.Model
		sum.Chunks = s.Chunks()
		s.opts.OnFinish(sum)
	})
}

// discard drops buffered decoder state.
func (s *Stream) discard() {
	s.buf = nil
	s.start = 0
}
