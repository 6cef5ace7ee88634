package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/compresr/inference-gateway/internal/adapters"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
)

// ErrStreamClosed is the failure reported for a stream closed before its
// terminal chunk.
var ErrStreamClosed = errors.New("stream closed before its terminal chunk")

// Stream is a streaming inference returned by Client.Stream. It forwards the
// adapter's chunk stream and reports the inference to monitoring when the
// stream ends.
type Stream struct {
	client     *Client
	ic         *InferenceContext
	chunks     *adapters.ChunkStream
	statusCode int
	cancel     context.CancelFunc

	count    int
	usage    *inference.Usage
	finish   *inference.FinishReason
	reported bool
}

func newStream(c *Client, ic *InferenceContext, chunks *adapters.ChunkStream, statusCode int, cancel context.CancelFunc) *Stream {
	return &Stream{client: c, ic: ic, chunks: chunks, statusCode: statusCode, cancel: cancel}
}

// ID returns the inference ID.
func (s *Stream) ID() string {
	return s.ic.ID.String()
}

// RawRequest returns the body sent to the provider.
func (s *Stream) RawRequest() string {
	return s.ic.RawRequest
}

// Next returns the next chunk, or io.EOF after the terminal chunk.
func (s *Stream) Next() (*inference.Chunk, error) {
	chunk, err := s.chunks.Next()
	if errors.Is(err, io.EOF) {
		s.end(nil)
		return nil, io.EOF
	}
	if err != nil {
		s.client.monitor.Alerts.FlagProtocolViolation(s.ic.ID.String(), s.ic.ProviderName, err)
		s.end(err)
		return nil, err
	}
	s.count++
	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	if chunk.FinishReason != nil {
		s.finish = chunk.FinishReason
	}
	return chunk, nil
}

// Close releases the upstream connection. It is safe to call more than once.
// Closing before the terminal chunk reports the inference as failed with
// ErrStreamClosed.
func (s *Stream) Close() error {
	err := s.chunks.Close()
	s.cancel()
	var endErr error
	if s.finish == nil {
		endErr = ErrStreamClosed
	}
	s.end(endErr)
	return err
}

// end reports the inference once.
func (s *Stream) end(err error) {
	if s.reported {
		return
	}
	s.reported = true

	s.client.monitor.Requests.LogStreamEnd(&monitoring.StreamEndInfo{
		InferenceID: s.ic.ID.String(),
		Chunks:      s.count,
		Latency:     time.Since(s.ic.StartedAt),
		Err:         err,
	})

	ev := s.ic.event(s.statusCode, 0, err)
	ev.Chunks = s.count
	if s.usage != nil {
		ev.InputTokens, ev.OutputTokens = s.usage.InputTokens, s.usage.OutputTokens
	}
	if s.finish != nil {
		ev.FinishReason = string(*s.finish)
	}
	if err != nil {
		s.client.monitor.Tracker.RecordFailure(s.ic.failure(err))
	}
	s.client.monitor.Observe(ev)
}
