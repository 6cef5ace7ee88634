// Package transport splits provider response bodies into frames.
//
// DESIGN: Providers deliver streaming events in one of two framings:
//
//   - SSE:          text/event-stream (OpenAI, Anthropic, Gemini, Ollama)
//   - EventStream:  AWS binary event-stream (Bedrock invoke-with-response-stream)
//
// Both are exposed as a pull-based Source so stream decoders never care about
// framing. Source.Next returns io.EOF once the body is exhausted.
//
// The package also carries the SigV4 signing RoundTripper used for Bedrock.
package transport

import (
	"fmt"
	"io"
)

// Framing identifies how a streaming body is split into events.
type Framing int

const (
	FramingSSE Framing = iota
	FramingEventStream
)

func (f Framing) String() string {
	switch f {
	case FramingSSE:
		return "sse"
	case FramingEventStream:
		return "eventstream"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// Frame is one upstream event.
type Frame struct {
	// Event is the SSE "event:" field or the event-stream ":event-type" header.
	Event string
	// MessageType is the event-stream ":message-type" header ("event",
	// "exception", "error"). Empty for SSE.
	MessageType string
	// Data is the event payload. It is owned by the frame.
	Data []byte
}

// IsException reports whether the frame is an event-stream exception or error.
func (f Frame) IsException() bool {
	return f.MessageType == "exception" || f.MessageType == "error"
}

// Source yields frames from an upstream body.
type Source interface {
	// Next returns the next frame, or io.EOF when the body ends cleanly.
	Next() (Frame, error)
}

// NewSource returns a Source for the given framing.
func NewSource(framing Framing, r io.Reader) (Source, error) {
	switch framing {
	case FramingSSE:
		return NewSSESource(r), nil
	case FramingEventStream:
		return NewEventStreamSource(r), nil
	default:
		return nil, fmt.Errorf("unsupported framing %s", framing)
	}
}
