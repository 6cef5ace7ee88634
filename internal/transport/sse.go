package transport

import (
	"bufio"
	"io"
	"strings"
)

// sseBufferSize fits the largest single event providers send in practice
// (Gemini partial responses with inline thought signatures).
const sseBufferSize = 64 * 1024

// SSESource reads Server-Sent Events.
//
// Events are delimited by blank lines. "data:" lines carry the payload and are
// joined with newlines; "event:" sets the event name. Comments (":") and
// "id:"/"retry:" fields are ignored.
type SSESource struct {
	reader *bufio.Reader
	eof    bool
}

// NewSSESource creates an SSE source over r.
func NewSSESource(r io.Reader) *SSESource {
	return &SSESource{reader: bufio.NewReaderSize(r, sseBufferSize)}
}

// Next returns the next event that carries data.
func (s *SSESource) Next() (Frame, error) {
	if s.eof {
		return Frame{}, io.EOF
	}

	var dataLines []string
	var event string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				return Frame{}, err
			}
			s.eof = true
			if hasData {
				return Frame{Event: event, Data: []byte(strings.Join(dataLines, "\n"))}, nil
			}
			return Frame{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				return Frame{Event: event, Data: []byte(strings.Join(dataLines, "\n"))}, nil
			}
			event = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field, value = line, ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			event = value
		}
	}
}

var _ Source = (*SSESource)(nil)
