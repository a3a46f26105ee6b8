package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const deviceIDHeader = "X-Device-ID"

// maxAuthRetries bounds the 401 refresh-and-retry path. Exactly one retry:
// a second 401 surfaces as ErrUnauthorized instead of looping.
const maxAuthRetries = 1

// Credentials supplies the pipeline with the current session material and the
// refresh operation invoked on a 401. The session manager implements it.
type Credentials interface {
	AccessToken() string
	DeviceID() string
	Refresh(ctx context.Context) error
}

// Client executes authenticated requests against the Nexzy backend. Requests
// may run concurrently; only the refresh step synchronizes across them, inside
// the Credentials implementation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
}

func NewClient(baseURL string, timeout time.Duration, creds Credentials) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}
}

type call struct {
	method          string
	endpoint        string
	body            interface{}
	authenticated   bool
	includeDeviceID bool
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// do dispatches a call, classifies the outcome, and decodes a 2xx body into
// out. On a 401 for an authenticated call it refreshes the session and
// re-issues the same request once with the new token.
func (c *Client) do(ctx context.Context, req call, out interface{}) error {
	u, err := url.Parse(c.baseURL + req.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}

	var payload []byte
	if req.body != nil {
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncoding, err)
		}
	}

	for attempt := 0; ; attempt++ {
		status, data, header, err := c.send(ctx, req, u.String(), payload)
		if err != nil {
			return err
		}

		if status >= 200 && status <= 299 {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%w: %v", ErrDecoding, err)
			}
			return nil
		}

		if status == http.StatusUnauthorized && req.authenticated {
			if attempt >= maxAuthRetries || c.creds == nil {
				return ErrUnauthorized
			}
			if err := c.creds.Refresh(ctx); err != nil {
				return ErrUnauthorized
			}
			continue
		}

		return classifyStatus(status, data, header)
	}
}

func (c *Client) send(ctx context.Context, req call, rawURL string, payload []byte) (int, []byte, http.Header, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, rawURL, body)
	if err != nil {
		return 0, nil, nil, ErrInvalidURL
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if req.authenticated && c.creds != nil {
		if token := c.creds.AccessToken(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if req.includeDeviceID && c.creds != nil {
		if deviceID := c.creds.DeviceID(); deviceID != "" {
			httpReq.Header.Set(deviceIDHeader, deviceID)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	return resp.StatusCode, data, resp.Header, nil
}

func classifyStatus(status int, data []byte, header http.Header) error {
	switch status {
	case http.StatusUnauthorized:
		// Unauthenticated 401 (pairing, refresh): classify by message.
		if isInvalidCodeMessage(errorMessage(data)) {
			return ErrInvalidCode
		}
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrMaxDevicesReached
	case http.StatusConflict:
		return ErrAlreadyPaired
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(header)}
	default:
		if msg := errorMessage(data); msg != "" {
			return &ServerError{StatusCode: status, Message: msg}
		}
		return &ServerError{StatusCode: status}
	}
}

func errorMessage(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var resp errorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ""
	}
	return resp.Message
}

func isInvalidCodeMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "code") {
		return false
	}
	return strings.Contains(lower, "invalid") || strings.Contains(lower, "expired")
}

func parseRetryAfter(header http.Header) int {
	const fallback = 300
	raw := header.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return seconds
}
