// Package datastore talks to the remote faceprint store and the monitoring endpoints.
package datastore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m3-muru/facial-rpi/internal/biometric"
)

// Config locates the faceprint store
type Config struct {
	FaceprintsURL      string        // GET list of faceprint records
	AddFaceprintURL    string        // POST one faceprint record
	PingURL            string        // GET liveness
	APIKey             string        // Sent as x-api-key on faceprint calls
	InsecureSkipVerify bool          // Accept self-signed certificates
	Timeout            time.Duration // Per-request timeout
}

// FaceprintRecord is one stored template row
type FaceprintRecord struct {
	EmployeeID string `json:"employee_id"`
	biometric.Faceprint
}

type faceprintList struct {
	Records []FaceprintRecord `json:"faceprint_records"`
}

// HTTPError is returned for any non-2xx response
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: request failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client is safe for concurrent use
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a datastore client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: newHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)}
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // the store uses a self-signed certificate
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Faceprints returns every stored record in store order
func (c *Client) Faceprints(ctx context.Context) ([]FaceprintRecord, error) {
	list, err := doJSON[faceprintList](ctx, c.http, http.MethodGet, c.cfg.FaceprintsURL, c.apiHeaders(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not fetch faceprints: %w", err)
	}
	return list.Records, nil
}

// AddFaceprint stores one record
func (c *Client) AddFaceprint(ctx context.Context, rec FaceprintRecord) error {
	if err := doRaw(ctx, c.http, http.MethodPost, c.cfg.AddFaceprintURL, c.apiHeaders(), rec); err != nil {
		return fmt.Errorf("could not add faceprint for %s: %w", rec.EmployeeID, err)
	}
	return nil
}

// Ping checks that the store answers
func (c *Client) Ping(ctx context.Context) error {
	if err := doRaw(ctx, c.http, http.MethodGet, c.cfg.PingURL, nil, nil); err != nil {
		return fmt.Errorf("could not ping datastore: %w", err)
	}
	return nil
}

func (c *Client) apiHeaders() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.cfg.APIKey}
}

// doJSON performs a request and unmarshals the JSON response into T.
func doJSON[T any](ctx context.Context, hc *http.Client, method, url string, headers map[string]string, requestBody any) (*T, error) {
	body, err := do(ctx, hc, method, url, headers, requestBody)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// doRaw performs a request and ignores the response body.
func doRaw(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, requestBody any) error {
	_, err := do(ctx, hc, method, url, headers, requestBody)
	return err
}

func do(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 200),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
