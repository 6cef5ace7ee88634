package adapters

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// ErrUnknownProvider is returned when no adapter is registered under a name.
var ErrUnknownProvider = errors.New("unknown provider")

// ChunkStream is the lazy, finite, non-restartable sequence of canonical
// chunks for one streaming inference.
//
// Usage:
//
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // forward chunk
//	}
//
// Next pulls upstream frames one at a time and returns at most one chunk per
// frame. The upstream body is closed at the first terminal event or error;
// later frames are never read.
type ChunkStream struct {
	body       io.Closer
	source     transport.Source
	decoder    StreamDecoder
	provider   string
	rawRequest string
	start      time.Time

	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewChunkStream wraps an upstream body. start is the time the request was
// sent; chunk latency is measured from it.
func NewChunkStream(body io.ReadCloser, adapter Adapter, target Target, rawRequest string, start time.Time) (*ChunkStream, error) {
	source, err := transport.NewSource(adapter.Framing(), body)
	if err != nil {
		_ = body.Close()
		return nil, inference.InternalError(adapter.Name(), "%v", err)
	}
	return &ChunkStream{
		body:       body,
		source:     source,
		decoder:    adapter.NewStreamDecoder(target),
		provider:   adapter.Name(),
		rawRequest: rawRequest,
		start:      start,
	}, nil
}

// Next returns the next chunk, or io.EOF after the terminal chunk.
func (s *ChunkStream) Next() (*inference.Chunk, error) {
	for {
		if s.done {
			return nil, io.EOF
		}

		frame, err := s.source.Next()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			return nil, s.fail(inference.ServerError(s.provider, "failed to read stream").Wrap(err), "")
		}

		chunk, done, err := s.decoder.Decode(frame)
		if err != nil {
			return nil, s.fail(err, string(frame.Data))
		}
		if done {
			s.stop()
		}
		if chunk == nil {
			continue
		}
		chunk.RawResponse = string(frame.Data)
		chunk.Latency = time.Since(s.start)
		return chunk, nil
	}
}

func (s *ChunkStream) finish() (*inference.Chunk, error) {
	chunk, err := s.decoder.Finish()
	if err != nil {
		return nil, s.fail(err, "")
	}
	s.stop()
	if chunk == nil {
		return nil, io.EOF
	}
	chunk.Latency = time.Since(s.start)
	return chunk, nil
}

// fail ends the stream, attaching the raw request and the offending frame.
func (s *ChunkStream) fail(err error, rawFrame string) error {
	s.stop()
	if e, ok := inference.AsError(err); ok {
		if e.Provider == "" {
			e.Provider = s.provider
		}
		if e.RawRequest == "" {
			e.RawRequest = s.rawRequest
		}
		if e.RawResponse == "" {
			e.RawResponse = rawFrame
		}
		return e
	}
	return inference.ServerError(s.provider, "stream failed").Wrap(err).WithRaw(s.rawRequest, rawFrame)
}

func (s *ChunkStream) stop() {
	s.done = true
	_ = s.Close()
}

// Close releases the upstream body. It is safe to call more than once.
func (s *ChunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Collect drains the stream into a slice.
func (s *ChunkStream) Collect() ([]*inference.Chunk, error) {
	defer s.Close()
	var chunks []*inference.Chunk
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
