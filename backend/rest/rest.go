// Package rest provides the HTTP transport and the generic resource client for
// the organizer REST API (Django REST Framework conventions).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orgsync/backend"
	"orgsync/internal/ratelimit"
	"orgsync/internal/utils"
)

// DefaultTimeout bounds every request when Config.Timeout is unset
const DefaultTimeout = 30 * time.Second

// CredentialSource supplies the bearer token attached to each request.
// An empty token means the request is sent without credentials.
type CredentialSource interface {
	Token() (string, error)
}

// StaticToken is a CredentialSource returning a fixed token
type StaticToken string

// Token implements CredentialSource
func (s StaticToken) Token() (string, error) { return string(s), nil }

// Config holds transport settings
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client // Override for testing; Timeout is ignored when set
	Credentials CredentialSource
	Limiter     *ratelimit.Limiter
}

// Transport performs JSON requests against the API. It is the single place
// where credentials are attached and failures are normalized.
type Transport struct {
	config  Config
	client  *http.Client
	baseURL string
}

// NewTransport creates a transport for cfg.BaseURL
func NewTransport(cfg Config) (*Transport, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be absolute (e.g. http://localhost:8000)", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Transport{
		config:  cfg,
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// BaseURL returns the API root without trailing slash
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Close releases idle connections
func (t *Transport) Close() error {
	if transport, ok := t.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// Do sends body (JSON-encoded when non-nil) to path and decodes a 2xx response
// into out (skipped when out is nil or the body is empty). Every failure is a
// *backend.RequestFailure.
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := t.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &backend.RequestFailure{Kind: backend.NetworkFailure, Method: method, Path: path, StatusCode: resp.StatusCode, Cause: err}
	}

	utils.Debugf("%s %s -> %d", method, path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := backend.Classify(method, path, resp.StatusCode, data)
		f.RetryAfter = t.config.Limiter.Observe(resp)
		return f
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &backend.RequestFailure{
			Kind:       backend.UnknownFailure,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Cause:      errors.New("empty response body"),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &backend.RequestFailure{
			Kind:       backend.UnknownFailure,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			RawBody:    data,
			Cause:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// doRequest builds and sends one request; it never retries
func (t *Transport) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, &backend.RequestFailure{Kind: backend.UnknownFailure, Method: method, Path: path, Cause: fmt.Errorf("encode request: %w", err)}
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, &backend.RequestFailure{Kind: backend.UnknownFailure, Method: method, Path: path, Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if t.config.Credentials != nil {
		token, err := t.config.Credentials.Token()
		if err != nil {
			utils.Warnf("could not read access token: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if err := t.config.Limiter.Wait(ctx); err != nil {
		return nil, &backend.RequestFailure{Kind: backend.NetworkFailure, Method: method, Path: path, Cause: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		utils.Debugf("%s %s -> %v", method, path, err)
		return nil, &backend.RequestFailure{Kind: backend.NetworkFailure, Method: method, Path: path, Cause: err}
	}
	return resp, nil
}

// IsOffline reports whether err is a NetworkFailure not caused by cancellation
func IsOffline(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, backend.ErrNetwork)
}
