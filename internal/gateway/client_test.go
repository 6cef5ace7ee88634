package gateway_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/config"
	"github.com/compresr/inference-gateway/internal/gateway"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
)

// recorded is one request seen by the mock upstream.
type recorded struct {
	Path    string
	Headers http.Header
	Body    []byte
}

// mockUpstream serves canned responses keyed by path and records what it got.
type mockUpstream struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newMockUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *mockUpstream {
	t.Helper()
	m := &mockUpstream{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, recorded{Path: r.URL.Path, Headers: r.Header.Clone(), Body: body})
		m.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockUpstream) last(t *testing.T) recorded {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.requests, "upstream received no request")
	return m.requests[len(m.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func helloRequest() *inference.Request {
	return &inference.Request{
		Messages: []inference.Message{{
			Role:    inference.RoleUser,
			Content: []inference.InputBlock{inference.Text{Text: "hello"}},
		}},
	}
}

func newConfig(providers config.ProvidersConfig) *config.Config {
	return &config.Config{
		HTTP:      config.HTTPConfig{Timeout: 5 * time.Second},
		Providers: providers,
	}
}

const anthropicReply = `{
	"id":"msg_1","type":"message","role":"assistant",
	"content":[{"type":"text","text":"Hi!"}],
	"stop_reason":"end_turn",
	"usage":{"input_tokens":8,"output_tokens":3}
}`

// =============================================================================
// INFER
// =============================================================================

func TestClient_Infer(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, anthropicReply)
	})
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"claude": {Type: "anthropic", Model: "claude-sonnet-4-5", APIBase: upstream.URL, APIKey: "sk-ant"},
	}))

	req := helloRequest()
	req.InferenceID = uuid.New()
	resp, err := client.Infer(context.Background(), "claude", req)
	require.NoError(t, err)

	assert.Equal(t, req.InferenceID, resp.ID)
	assert.Equal(t, []inference.OutputBlock{inference.Text{Text: "Hi!"}}, resp.Output)
	assert.Equal(t, inference.FinishStop, *resp.FinishReason)
	assert.Equal(t, uint32(8), *resp.Usage.InputTokens)
	assert.JSONEq(t, anthropicReply, resp.RawResponse)

	got := upstream.last(t)
	assert.Equal(t, "/v1/messages", got.Path)
	assert.Equal(t, "sk-ant", got.Headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", got.Headers.Get("anthropic-version"))
	assert.Equal(t, resp.RawRequest, string(got.Body))
	assert.Equal(t, "claude-sonnet-4-5", gjson.GetBytes(got.Body, "model").String())
	assert.False(t, gjson.GetBytes(got.Body, "stream").Bool())
}

func TestClient_Infer_AssignsInferenceID(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, anthropicReply)
	})
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"anthropic": {Model: "claude-sonnet-4-5", APIBase: upstream.URL},
	}))

	resp, err := client.Infer(context.Background(), "anthropic", helloRequest())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.ID)
}

func TestClient_Infer_AuthHeaders(t *testing.T) {
	tests := []struct {
		name     string
		provider config.ProviderConfig
		reply    string
		header   string
		want     string
	}{
		{
			name:     "openai bearer",
			provider: config.ProviderConfig{Type: "openai", Model: "gpt-4.1", APIKey: "sk-oai"},
			reply:    `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`,
			header:   "Authorization",
			want:     "Bearer sk-oai",
		},
		{
			name:     "gemini api key",
			provider: config.ProviderConfig{Type: "gemini", Model: "gemini-2.5-flash", APIKey: "g-key"},
			reply:    `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`,
			header:   "x-goog-api-key",
			want:     "g-key",
		},
		{
			name: "configured header wins",
			provider: config.ProviderConfig{
				Type: "openai", Model: "gpt-4.1", APIKey: "sk-oai",
				ExtraHeaders: map[string]string{"Authorization": "Bearer proxy-token"},
			},
			reply:  `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`,
			header: "Authorization",
			want:   "Bearer proxy-token",
		},
		{
			name:     "ollama without key",
			provider: config.ProviderConfig{Type: "ollama", Model: "llama3.2"},
			reply:    `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`,
			header:   "Authorization",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.reply)
			})
			p := tt.provider
			p.APIBase = upstream.URL
			client := gateway.NewClient(newConfig(config.ProvidersConfig{"target": p}))

			_, err := client.Infer(context.Background(), "target", helloRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.want, upstream.last(t).Headers.Get(tt.header))
		})
	}
}

func TestClient_Infer_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    inference.ErrorKind
		message string
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"type":"error","error":{"type":"rate_limit_error","message":"Slow down"}}`,
			kind:    inference.KindInferenceClient,
			message: "Slow down",
		},
		{
			name:    "overloaded",
			status:  529,
			body:    `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			kind:    inference.KindInferenceServer,
			message: "Overloaded",
		},
		{
			name:    "plain text body",
			status:  http.StatusBadGateway,
			body:    "bad gateway",
			kind:    inference.KindInferenceServer,
			message: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			client := gateway.NewClient(newConfig(config.ProvidersConfig{
				"anthropic": {Model: "claude-sonnet-4-5", APIBase: upstream.URL},
			}))

			_, err := client.Infer(context.Background(), "anthropic", helloRequest())
			require.Error(t, err)
			e, ok := inference.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.StatusCode)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, "anthropic", e.Provider)
			assert.Equal(t, tt.body, e.RawResponse)
			assert.NotEmpty(t, e.RawRequest)
		})
	}
}

func TestClient_Infer_MalformedResponse(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"not":"a message"`)
	})
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"anthropic": {Model: "claude-sonnet-4-5", APIBase: upstream.URL},
	}))

	_, err := client.Infer(context.Background(), "anthropic", helloRequest())
	require.Error(t, err)
	e, ok := inference.AsError(err)
	require.True(t, ok)
	assert.Equal(t, inference.KindInferenceServer, e.Kind)
	assert.Equal(t, `{"not":"a message"`, e.RawResponse)
	assert.NotEmpty(t, e.RawRequest)
}

func TestClient_Infer_RoutingErrors(t *testing.T) {
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"anthropic": {Model: "claude-sonnet-4-5", APIBase: "http://127.0.0.1:0"},
		"custom":    {Type: "cohere", Model: "command-r"},
	}))

	_, err := client.Infer(context.Background(), "missing", helloRequest())
	assert.ErrorContains(t, err, `provider "missing" is not configured`)

	_, err = client.Infer(context.Background(), "custom", helloRequest())
	assert.ErrorContains(t, err, "unknown provider")

	_, err = client.Infer(context.Background(), "anthropic", &inference.Request{})
	assert.True(t, inference.IsKind(err, inference.KindInvalidRequest))
}

// =============================================================================
// STREAM
// =============================================================================

func TestClient_Stream(t *testing.T) {
	events := []string{
		`{"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2}}`,
		`[DONE]`,
	}
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		bw := bufio.NewWriter(w)
		for _, ev := range events {
			fmt.Fprintf(bw, "data: %s\n\n", ev)
		}
		_ = bw.Flush()
	})

	dir := t.TempDir()
	monitor, err := monitoring.NewMonitor(monitoring.Config{
		Logger: monitoring.LoggerConfig{Level: "disabled", Output: "discard"},
		Telemetry: monitoring.TelemetryConfig{
			Enabled: true,
			LogPath: filepath.Join(dir, "telemetry.jsonl"),
		},
	})
	require.NoError(t, err)

	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"openai": {Model: "gpt-4.1", APIBase: upstream.URL + "/v1", APIKey: "sk-oai"},
	}), gateway.WithHTTPClient(upstream.Client()), gateway.WithMonitor(monitor))

	stream, err := client.Stream(context.Background(), "openai", helloRequest())
	require.NoError(t, err)
	defer stream.Close()

	var text strings.Builder
	var last *inference.Chunk
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, block := range chunk.Content {
			if tc, ok := block.(inference.TextChunk); ok {
				text.WriteString(tc.Text)
			}
		}
		last = chunk
	}
	require.NoError(t, stream.Close())

	assert.Equal(t, "Hello", text.String())
	require.NotNil(t, last)
	assert.Equal(t, inference.FinishStop, *last.FinishReason)
	assert.Equal(t, uint32(2), *last.Usage.OutputTokens)

	got := upstream.last(t)
	assert.Equal(t, "/v1/chat/completions", got.Path)
	assert.True(t, gjson.GetBytes(got.Body, "stream").Bool())
	assert.True(t, gjson.GetBytes(got.Body, "stream_options.include_usage").Bool())
	assert.Equal(t, stream.RawRequest(), string(got.Body))

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "stream is reported once")

	var ev monitoring.InferenceEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, stream.ID(), ev.InferenceID)
	assert.True(t, ev.Stream)
	assert.True(t, ev.Success)
	assert.Equal(t, 3, ev.Chunks)
	assert.Equal(t, "stop", ev.FinishReason)
	assert.Equal(t, int64(1), monitor.Metrics.Stats()["streams"])
}

func TestClient_Stream_ClosedEarly(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
	})

	dir := t.TempDir()
	monitor, err := monitoring.NewMonitor(monitoring.Config{
		Logger: monitoring.LoggerConfig{Level: "disabled", Output: "discard"},
		Telemetry: monitoring.TelemetryConfig{
			Enabled:              true,
			LogPath:              filepath.Join(dir, "telemetry.jsonl"),
			FailedRequestLogPath: filepath.Join(dir, "failed.jsonl"),
		},
	})
	require.NoError(t, err)

	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"openai": {Model: "gpt-4.1", APIBase: upstream.URL + "/v1", APIKey: "sk-oai"},
	}), gateway.WithHTTPClient(upstream.Client()), gateway.WithMonitor(monitor))

	stream, err := client.Stream(context.Background(), "openai", helloRequest())
	require.NoError(t, err)
	_, err = stream.Next()
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "stream is reported once")

	var ev monitoring.InferenceEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, stream.ID(), ev.InferenceID)
	assert.False(t, ev.Success)
	assert.Equal(t, gateway.ErrStreamClosed.Error(), ev.Error)
	assert.Equal(t, 1, ev.Chunks)
	assert.Empty(t, ev.FinishReason)
	assert.Equal(t, int64(0), monitor.Metrics.Stats()["successes"])

	failed, err := os.ReadFile(filepath.Join(dir, "failed.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(failed), stream.ID())
}

func TestClient_Stream_UpstreamError(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":{"message":"Unsupported parameter"}}`)
	})
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"openai_responses": {Model: "gpt-5", APIBase: upstream.URL},
	}))

	_, err := client.Stream(context.Background(), "openai_responses", helloRequest())
	require.Error(t, err)
	assert.True(t, inference.IsKind(err, inference.KindInferenceClient))
	assert.Contains(t, err.Error(), "Unsupported parameter")
}

// =============================================================================
// BEDROCK SIGNING
// =============================================================================

func TestClient_Bedrock_SignsRequests(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, anthropicReply)
	})
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
	})
	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"bedrock": {
			Model:   "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Region:  "eu-west-1",
			APIBase: upstream.URL,
			APIKey:  "ignored",
		},
	}), gateway.WithAWSCredentials(creds))

	resp, err := client.Infer(context.Background(), "bedrock", helloRequest())
	require.NoError(t, err)
	assert.Equal(t, inference.FinishStop, *resp.FinishReason)

	got := upstream.last(t)
	assert.Equal(t, "/model/anthropic.claude-3-5-sonnet-20241022-v2:0/invoke", got.Path)
	auth := got.Headers.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"), auth)
	assert.Contains(t, auth, "/eu-west-1/bedrock/aws4_request")
	assert.NotEmpty(t, got.Headers.Get("X-Amz-Date"))
	assert.Equal(t, "bedrock-2023-05-31", gjson.GetBytes(got.Body, "anthropic_version").String())
}

// =============================================================================
// FAILED INFERENCE LOG
// =============================================================================

func TestClient_RecordsFailedInference(t *testing.T) {
	upstream := newMockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	})
	failedPath := filepath.Join(t.TempDir(), "failed.jsonl")
	monitor, err := monitoring.NewMonitor(monitoring.Config{
		Logger:    monitoring.LoggerConfig{Level: "disabled", Output: "discard"},
		Telemetry: monitoring.TelemetryConfig{Enabled: true, FailedRequestLogPath: failedPath},
	})
	require.NoError(t, err)

	client := gateway.NewClient(newConfig(config.ProvidersConfig{
		"gemini": {Model: "gemini-2.5-flash", APIBase: upstream.URL},
	}), gateway.WithMonitor(monitor))

	_, err = client.Infer(context.Background(), "gemini", helloRequest())
	require.Error(t, err)

	data, err := os.ReadFile(failedPath)
	require.NoError(t, err)
	var failure monitoring.FailedInference
	require.NoError(t, json.Unmarshal(data, &failure))
	assert.Equal(t, "gemini", failure.Provider)
	assert.Equal(t, string(inference.KindInferenceServer), failure.ErrorKind)
	assert.Equal(t, http.StatusInternalServerError, failure.StatusCode)
	assert.Equal(t, `{"error":{"message":"boom"}}`, failure.RawResponse)
	assert.NotEmpty(t, failure.RawRequest)

	stats := monitor.Metrics.Stats()
	assert.Equal(t, int64(1), stats["inferences"])
	assert.Equal(t, int64(0), stats["successes"])
}
