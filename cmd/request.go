package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/compresr/inference-gateway/internal/inference"
)

// readRequest loads a canonical request from path ("-" reads stdin). Comments
// and trailing commas are allowed.
func readRequest(path string, stdin io.Reader) (*inference.Request, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return parseRequest(data)
}

func parseRequest(data []byte) (*inference.Request, error) {
	var req inference.Request
	if err := json.Unmarshal(jsonc.ToJSON(data), &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}
