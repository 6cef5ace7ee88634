package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
)

const (
	bedrockSigningService = "bedrock"
	bedrockHostPattern    = "bedrock-runtime.%s.amazonaws.com"
	defaultAWSRegion      = "us-east-1"
)

// BedrockEndpoint returns the Bedrock Runtime base URL for a region.
func BedrockEndpoint(region string) string {
	if region == "" {
		region = defaultAWSRegion
	}
	return "https://" + fmt.Sprintf(bedrockHostPattern, region)
}

// SigningTransport is an http.RoundTripper that signs requests with AWS SigV4
// for the bedrock-runtime service.
type SigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewSigningTransport creates a signing transport from explicit credentials.
// A nil base uses http.DefaultTransport.
func NewSigningTransport(credentials aws.CredentialsProvider, region string, base http.RoundTripper) *SigningTransport {
	if region == "" {
		region = defaultAWSRegion
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &SigningTransport{
		credentials: credentials,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// NewDefaultSigningTransport loads credentials from the standard AWS chain
// (environment, shared config, IAM role) and verifies they are retrievable.
func NewDefaultSigningTransport(ctx context.Context, region string, base http.RoundTripper) (*SigningTransport, error) {
	if region == "" {
		region = defaultAWSRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	log.Debug().
		Str("region", region).
		Str("access_key_prefix", creds.AccessKeyID[:min(4, len(creds.AccessKeyID))]+"...").
		Msg("bedrock signer initialized")

	return NewSigningTransport(cfg.Credentials, region, base), nil
}

// Region returns the signing region.
func (t *SigningTransport) Region() string {
	return t.region
}

// RoundTrip signs the request and forwards it to the base transport.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
		_ = req.Body.Close()
	}

	// RoundTrip must not modify the caller's request.
	signed := req.Clone(req.Context())
	signed.Body = io.NopCloser(bytes.NewReader(body))
	signed.ContentLength = int64(len(body))

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := t.signer.SignHTTP(req.Context(), creds, signed, payloadHash, bedrockSigningService, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("failed to sign Bedrock request: %w", err)
	}

	return t.base.RoundTrip(signed)
}

var _ http.RoundTripper = (*SigningTransport)(nil)
