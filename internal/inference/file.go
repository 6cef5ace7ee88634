package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// ResolvedFile is a file ready to be referenced from a provider request.
// Exactly one of Data (base64) or URL is set.
type ResolvedFile struct {
	MimeType string
	Data     string
	URL      string
	Filename string
}

// Inline reports whether the file travels inline as base64.
func (f ResolvedFile) Inline() bool {
	return f.Data != ""
}

// DataURL renders an inline file as a data: URL.
func (f ResolvedFile) DataURL() string {
	return "data:" + f.MimeType + ";base64," + f.Data
}

// IsImage reports whether the file has an image MIME type.
func (f ResolvedFile) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// FileResolver turns a File block into a provider-usable reference.
// Implementations may fetch remote objects; adapters call it once per block.
type FileResolver interface {
	Resolve(ctx context.Context, file File) (ResolvedFile, error)
}

// FileResolverFunc adapts a function to FileResolver.
type FileResolverFunc func(ctx context.Context, file File) (ResolvedFile, error)

// Resolve calls f.
func (f FileResolverFunc) Resolve(ctx context.Context, file File) (ResolvedFile, error) {
	return f(ctx, file)
}

// InlineFileResolver resolves files that already carry their bytes or a URL.
// It never fetches anything.
type InlineFileResolver struct{}

// Resolve validates inline data and passes URLs through as hosted references.
func (InlineFileResolver) Resolve(_ context.Context, file File) (ResolvedFile, error) {
	switch {
	case file.Data != "":
		if file.MimeType == "" {
			return ResolvedFile{}, fmt.Errorf("inline file requires a mime_type")
		}
		if _, err := base64.StdEncoding.DecodeString(file.Data); err != nil {
			return ResolvedFile{}, fmt.Errorf("inline file data is not base64: %w", err)
		}
		return ResolvedFile{MimeType: file.MimeType, Data: file.Data, Filename: file.Filename}, nil
	case file.URL != "":
		if data, mime, ok := parseDataURL(file.URL); ok {
			return ResolvedFile{MimeType: mime, Data: data, Filename: file.Filename}, nil
		}
		return ResolvedFile{MimeType: file.MimeType, URL: file.URL, Filename: file.Filename}, nil
	default:
		return ResolvedFile{}, fmt.Errorf("file has neither data nor url")
	}
}

// parseDataURL splits "data:<mime>;base64,<data>".
func parseDataURL(u string) (data, mime string, ok bool) {
	rest, found := strings.CutPrefix(u, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mime, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return "", "", false
	}
	return payload, mime, true
}
