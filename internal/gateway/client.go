// Package gateway dispatches canonical inferences to providers.
//
// DESIGN: Client is the single entry point for calling any configured
// provider. It resolves the provider entry, lets the adapter build the wire
// request, adds credentials, sends it, and hands the body back to the adapter.
//
// FLOW:
//  1. Resolve the provider entry (config) and its adapter (registry)
//  2. adapter.BuildRequest: canonical request -> wire request (no I/O)
//  3. Auth: API key header, or SigV4 signing transport for Bedrock
//  4. Send; non-2xx -> inference_client (4xx) / inference_server (5xx)
//  5. Infer: adapter.ParseResponse; Stream: adapters.ChunkStream
//  6. Report the inference to monitoring
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/adapters"
	"github.com/compresr/inference-gateway/internal/config"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
	"github.com/compresr/inference-gateway/internal/transport"
)

const (
	// maxResponseSize prevents OOM on unexpectedly large API responses (32MB).
	maxResponseSize = 32 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// Client sends canonical inferences to configured providers.
// It is safe for concurrent use.
type Client struct {
	providers config.ProvidersConfig
	timeout   time.Duration
	registry  *adapters.Registry
	http      *http.Client
	monitor   *monitoring.Monitor

	awsCredentials aws.CredentialsProvider
	signers        map[string]*http.Client // region -> signing client
	mu             sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (useful for testing and connection pooling).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRegistry overrides the adapter registry.
func WithRegistry(r *adapters.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithMonitor reports inferences to m.
func WithMonitor(m *monitoring.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

// WithAWSCredentials signs Bedrock calls with explicit credentials instead of
// the default AWS chain.
func WithAWSCredentials(creds aws.CredentialsProvider) Option {
	return func(c *Client) { c.awsCredentials = creds }
}

// NewClient creates a client for the configured providers.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		providers: cfg.Providers,
		timeout:   cfg.HTTP.Timeout,
		http:      &http.Client{}, // timeout via context, not client
		signers:   make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = adapters.NewRegistry(nil)
	}
	if c.monitor == nil {
		c.monitor = monitoring.NewNopMonitor()
	}
	return c
}

// Infer runs a non-streaming inference.
func (c *Client) Infer(ctx context.Context, providerName string, req *inference.Request) (*inference.Response, error) {
	ic, err := c.prepare(ctx, providerName, req, false)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, ic)
	if err != nil {
		c.report(ic, 0, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		err = inference.ServerError(ic.ProviderName, "failed to read response").Wrap(err).WithRaw(ic.RawRequest, "")
		c.report(ic, resp.StatusCode, 0, err)
		return nil, err
	}
	latency := time.Since(ic.StartedAt)

	parsed, err := ic.Adapter.ParseResponse(body, ic.Target)
	if err != nil {
		err = attachRaw(err, ic, string(body))
		c.monitor.Alerts.FlagProtocolViolation(ic.ID.String(), ic.ProviderName, err)
		c.report(ic, resp.StatusCode, len(body), err)
		return nil, err
	}

	out := &inference.Response{
		ID:           ic.ID,
		Output:       parsed.Output,
		Usage:        parsed.Usage,
		FinishReason: parsed.FinishReason,
		RawRequest:   ic.RawRequest,
		RawResponse:  string(body),
		Latency:      latency,
	}

	ev := ic.event(resp.StatusCode, len(body), nil)
	ev.InputTokens, ev.OutputTokens = out.Usage.InputTokens, out.Usage.OutputTokens
	if out.FinishReason != nil {
		ev.FinishReason = string(*out.FinishReason)
	}
	c.monitor.Observe(ev)
	return out, nil
}

// Stream starts a streaming inference. The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, providerName string, req *inference.Request) (*Stream, error) {
	ic, err := c.prepare(ctx, providerName, req, true)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	resp, err := c.send(ctx, ic)
	if err != nil {
		cancel()
		c.report(ic, 0, 0, err)
		return nil, err
	}

	chunks, err := adapters.NewChunkStream(resp.Body, ic.Adapter, ic.Target, ic.RawRequest, ic.StartedAt)
	if err != nil {
		cancel()
		c.report(ic, resp.StatusCode, 0, err)
		return nil, err
	}
	return newStream(c, ic, chunks, resp.StatusCode, cancel), nil
}

// prepare resolves the provider and builds the wire request.
func (c *Client) prepare(ctx context.Context, providerName string, req *inference.Request, stream bool) (*InferenceContext, error) {
	provider, err := c.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	adapter, err := c.registry.Lookup(provider.ProviderType(providerName))
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerName, err)
	}
	if err := req.Validate(); err != nil {
		if e, ok := inference.AsError(err); ok {
			return nil, e.WithProvider(providerName)
		}
		return nil, err
	}

	// Adapters never mutate the request; the stream flag is set on a copy.
	r := *req
	r.Stream = stream

	ic := newInferenceContext(providerName, provider, adapter, &r, stream)
	ctx = monitoring.WithInferenceIDContext(ctx, ic.ID.String())

	wire, err := adapter.BuildRequest(ctx, &r, ic.Target)
	if err != nil {
		return nil, err
	}
	setProviderHeaders(wire.Headers, provider.ExtraHeaders)
	setAuthHeaders(wire.Headers, provider.ProviderType(providerName), provider.ResolveAPIKey(providerName))

	ic.Wire = wire
	ic.RawRequest = string(wire.Body)
	return ic, nil
}

// send performs the HTTP call and maps non-2xx statuses to inference errors.
func (c *Client) send(ctx context.Context, ic *InferenceContext) (*http.Response, error) {
	hc, err := c.httpClientFor(ctx, ic)
	if err != nil {
		return nil, inference.NewError(inference.KindInferenceClient, "failed to set up request signing").
			WithProvider(ic.ProviderName).Wrap(err).WithRaw(ic.RawRequest, "")
	}

	httpReq, err := http.NewRequestWithContext(ctx, ic.Wire.Method, ic.Wire.URL, bytes.NewReader(ic.Wire.Body))
	if err != nil {
		return nil, inference.InternalError(ic.ProviderName, "failed to create request").Wrap(err)
	}
	httpReq.Header = ic.Wire.Headers.Clone()

	c.monitor.Requests.LogOutgoing(&monitoring.OutgoingRequestInfo{
		InferenceID: ic.ID.String(),
		Provider:    ic.ProviderName,
		TargetURL:   ic.Wire.URL,
		Method:      ic.Wire.Method,
		BodySize:    len(ic.Wire.Body),
		Stream:      ic.Stream,
	})

	ic.StartedAt = time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.monitor.Alerts.FlagUpstreamTimeout(ic.ID.String(), ic.ProviderName, c.timeout)
		}
		return nil, inference.ServerError(ic.ProviderName, "request failed").Wrap(err).WithRaw(ic.RawRequest, "")
	}

	c.monitor.Requests.LogResponse(&monitoring.ResponseInfo{
		InferenceID: ic.ID.String(),
		StatusCode:  resp.StatusCode,
		Latency:     time.Since(ic.StartedAt),
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	msg := providerErrorMessage(body)
	c.monitor.Alerts.FlagProviderError(ic.ID.String(), ic.ProviderName, resp.StatusCode, msg)

	kind := inference.KindInferenceServer
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = inference.KindInferenceClient
	}
	e := inference.NewError(kind, msg).WithProvider(ic.ProviderName).WithRaw(ic.RawRequest, string(body))
	e.StatusCode = resp.StatusCode
	return nil, e
}

// httpClientFor returns the SigV4 signing client for Bedrock, the plain
// client otherwise. Signing clients are cached per region.
func (c *Client) httpClientFor(ctx context.Context, ic *InferenceContext) (*http.Client, error) {
	if ic.Adapter.Provider() != adapters.ProviderBedrock {
		return c.http, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	region := ic.Target.Region
	if hc, ok := c.signers[region]; ok {
		return hc, nil
	}

	base := c.http.Transport
	var signer *transport.SigningTransport
	if c.awsCredentials != nil {
		signer = transport.NewSigningTransport(c.awsCredentials, region, base)
	} else {
		var err error
		if signer, err = transport.NewDefaultSigningTransport(ctx, region, base); err != nil {
			return nil, err
		}
	}
	hc := &http.Client{Transport: signer, Timeout: c.http.Timeout}
	c.signers[region] = hc
	log.Debug().Str("region", signer.Region()).Msg("bedrock signing client ready")
	return hc, nil
}

// report records a failed inference.
func (c *Client) report(ic *InferenceContext, statusCode, responseSize int, err error) {
	c.monitor.Tracker.RecordFailure(ic.failure(err))
	c.monitor.Observe(ic.event(statusCode, responseSize, err))
}

// providerErrorMessage extracts the message from a provider error body.
func providerErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "message", "error", "Message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	msg := string(body)
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen] + "... (truncated)"
	}
	if msg == "" {
		msg = "empty error response"
	}
	return msg
}

// attachRaw fills in raw request/response on adapter errors.
func attachRaw(err error, ic *InferenceContext, rawResponse string) error {
	e, ok := inference.AsError(err)
	if !ok {
		return inference.ServerError(ic.ProviderName, "failed to parse response").Wrap(err).WithRaw(ic.RawRequest, rawResponse)
	}
	if e.RawRequest == "" {
		e.RawRequest = ic.RawRequest
	}
	if e.RawResponse == "" {
		e.RawResponse = rawResponse
	}
	return e
}
