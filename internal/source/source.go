// internal/source/source.go
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// DefaultRequestTimeout bounds every HTTP call a source makes.
const DefaultRequestTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Source fetches raw rate records of one protocol for one chain.
type Source interface {
	Name() string
	Fetch(ctx context.Context, chain domain.Chain) ([]domain.RawRecord, error)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, e.Body)
}

// NewHTTPClient returns a client with a bounded timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(client, req, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return &StatusError{URL: req.URL.String(), Status: resp.StatusCode, Body: string(snippet)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

var contractAddressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// ExtractContractAddress returns the first EVM address found in any of the values.
func ExtractContractAddress(values ...string) string {
	for _, v := range values {
		if m := contractAddressPattern.FindString(v); m != "" {
			return m
		}
	}
	return ""
}

var (
	unsignedIntegerPattern = regexp.MustCompile(`^\d+$`)
	unsignedDecimalPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// plainNumber renders a JSON number without exponent notation. Values that
// only float64 can represent are rounded through it, which bounds the
// output length. Anything else is returned unchanged for the parser to reject.
func plainNumber(n json.Number) string {
	s := n.String()
	if !strings.ContainsAny(s, "eE") {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
