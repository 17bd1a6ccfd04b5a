package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"court-intake-service/internal/matching"
)

const maxScanBytes = 1 << 20

// NewDocumentIntel returns an HTTP client for the document intelligence
// service, or a local scanner when no URL is configured.
func NewDocumentIntel(url string, timeout time.Duration) matching.DocumentIntel {
	if url == "" {
		return NewFileIntel()
	}
	return NewIntelClient(url, timeout)
}

// IntelClient calls a document intelligence service that reads a document and
// returns the identifiers it contains.
type IntelClient struct {
	baseURL string
	http    *http.Client
}

type intelRequest struct {
	Path  string `json:"path"`
	Field string `json:"field"`
}

type intelResponse struct {
	Values []string `json:"values"`
	Error  string   `json:"error,omitempty"`
}

func NewIntelClient(baseURL string, timeout time.Duration) *IntelClient {
	return &IntelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *IntelClient) ExtractCaseNumbers(ctx context.Context, path string) ([]string, error) {
	return c.extract(ctx, path, "case_numbers")
}

func (c *IntelClient) ExtractPartyNames(ctx context.Context, path string) ([]string, error) {
	return c.extract(ctx, path, "party_names")
}

func (c *IntelClient) extract(ctx context.Context, path, field string) ([]string, error) {
	body, err := json.Marshal(intelRequest{Path: path, Field: field})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document intel request: %w", err)
	}
	defer resp.Body.Close()

	var out intelResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxScanBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("document intel returned %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document intel returned %d: %s", resp.StatusCode, out.Error)
	}
	return out.Values, nil
}

// FileIntel scans the file name and, for text documents, the file body with
// the same patterns the message parser uses.
type FileIntel struct{}

func NewFileIntel() *FileIntel { return &FileIntel{} }

func (f *FileIntel) ExtractCaseNumbers(_ context.Context, path string) ([]string, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	return dedupe(caseNumberPattern.FindAllString(text, -1)), nil
}

func (f *FileIntel) ExtractPartyNames(_ context.Context, path string) ([]string, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	return PartyNames(text), nil
}

func readText(path string) (string, error) {
	name := filepath.Base(path)
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxScanBytes))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return name, nil
	}
	return name + "\n" + string(data), nil
}
