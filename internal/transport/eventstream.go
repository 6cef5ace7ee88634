package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// Event-stream header names.
const (
	headerEventType     = ":event-type"
	headerMessageType   = ":message-type"
	headerExceptionType = ":exception-type"
	headerErrorCode     = ":error-code"
)

// EventStreamSource reads AWS binary event-stream messages.
type EventStreamSource struct {
	reader  io.Reader
	decoder *eventstream.Decoder
	buf     []byte
}

// NewEventStreamSource creates an event-stream source over r.
func NewEventStreamSource(r io.Reader) *EventStreamSource {
	return &EventStreamSource{
		reader:  r,
		decoder: eventstream.NewDecoder(),
		buf:     make([]byte, 0, 16*1024),
	}
}

// Next decodes the next message. Exception messages are returned as frames
// with Event set to the exception type; the decoder decides how to fail.
func (s *EventStreamSource) Next() (Frame, error) {
	msg, err := s.decoder.Decode(s.reader, s.buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("decode event-stream message: %w", err)
	}

	frame := Frame{
		MessageType: headerString(msg.Headers, headerMessageType),
		Event:       headerString(msg.Headers, headerEventType),
		// Payload aliases s.buf; copy it out before the next Decode.
		Data: append([]byte(nil), msg.Payload...),
	}
	if frame.Event == "" {
		frame.Event = headerString(msg.Headers, headerExceptionType)
	}
	if frame.Event == "" {
		frame.Event = headerString(msg.Headers, headerErrorCode)
	}
	return frame, nil
}

func headerString(headers eventstream.Headers, name string) string {
	v := headers.Get(name)
	if v == nil {
		return ""
	}
	if s, ok := v.Get().(string); ok {
		return s
	}
	return v.String()
}

var _ Source = (*EventStreamSource)(nil)
