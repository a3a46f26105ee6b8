package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCreds struct {
	token        atomic.Value
	deviceID     string
	refreshErr   error
	refreshCalls int32
	refreshTo    string
}

func newFakeCreds(token, deviceID string) *fakeCreds {
	c := &fakeCreds{deviceID: deviceID}
	c.token.Store(token)
	return c
}

func (c *fakeCreds) AccessToken() string {
	v, _ := c.token.Load().(string)
	return v
}

func (c *fakeCreds) DeviceID() string { return c.deviceID }

func (c *fakeCreds) Refresh(ctx context.Context) error {
	atomic.AddInt32(&c.refreshCalls, 1)
	if c.refreshErr != nil {
		return c.refreshErr
	}
	c.token.Store(c.refreshTo)
	return nil
}

func testClient(url string, creds Credentials) *Client {
	return NewClient(url, 2*time.Second, creds)
}

func TestDoDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Fatalf("missing accept header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	var resp MessageResponse
	err := testClient(srv.URL, nil).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, &resp)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.Message != "ok" {
		t.Fatalf("unexpected message: %s", resp.Message)
	}
}

func TestDoDecodingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var resp MessageResponse
	err := testClient(srv.URL, nil).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, &resp)
	if !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
}

func TestUnauthenticated401Classification(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    error
	}{
		{"invalid code message", `{"statusCode":401,"message":"Invalid or expired pairing code"}`, ErrInvalidCode},
		{"expired code message", `{"statusCode":401,"message":"Pairing code expired"}`, ErrInvalidCode},
		{"other message", `{"statusCode":401,"message":"Refresh token is invalid or revoked"}`, ErrUnauthorized},
		{"no body", ``, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := testClient(srv.URL, nil).do(context.Background(), call{method: http.MethodPost, endpoint: "/pair"}, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name: "403 max devices", status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMaxDevicesReached) {
					t.Fatalf("expected ErrMaxDevicesReached, got %v", err)
				}
			},
		},
		{
			name: "409 already paired", status: http.StatusConflict,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrAlreadyPaired) {
					t.Fatalf("expected ErrAlreadyPaired, got %v", err)
				}
			},
		},
		{
			name: "429 with retry-after", status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "42"},
			check: func(t *testing.T, err error) {
				var rle *RateLimitError
				if !errors.As(err, &rle) || rle.RetryAfter != 42 {
					t.Fatalf("expected RateLimitError{42}, got %v", err)
				}
				if !errors.Is(err, ErrRateLimited) {
					t.Fatalf("expected ErrRateLimited sentinel, got %v", err)
				}
			},
		},
		{
			name: "429 without retry-after defaults", status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var rle *RateLimitError
				if !errors.As(err, &rle) || rle.RetryAfter != 300 {
					t.Fatalf("expected RateLimitError{300}, got %v", err)
				}
			},
		},
		{
			name: "429 with garbage retry-after defaults", status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "soon"},
			check: func(t *testing.T, err error) {
				var rle *RateLimitError
				if !errors.As(err, &rle) || rle.RetryAfter != 300 {
					t.Fatalf("expected RateLimitError{300}, got %v", err)
				}
			},
		},
		{
			name: "500 with structured message", status: http.StatusInternalServerError,
			body: `{"statusCode":500,"message":"database unavailable"}`,
			check: func(t *testing.T, err error) {
				var se *ServerError
				if !errors.As(err, &se) || se.Message != "database unavailable" {
					t.Fatalf("expected ServerError with message, got %v", err)
				}
			},
		},
		{
			name: "502 without body", status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var se *ServerError
				if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
					t.Fatalf("expected ServerError{502}, got %v", err)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := testClient(srv.URL, nil).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, nil)
			tc.check(t, err)
		})
	}
}

func TestRequestEncodingError(t *testing.T) {
	err := testClient("http://localhost:0", nil).do(context.Background(), call{
		method:   http.MethodPost,
		endpoint: "/x",
		body:     map[string]interface{}{"bad": make(chan int)},
	}, nil)
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	if errors.Is(err, ErrDecoding) {
		t.Fatalf("request encoding failure must not classify as a decode error")
	}
}

func TestPerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 50*time.Millisecond, nil)
	err := client.do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, nil)
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection on timeout, got %v", err)
	}
}

func TestTransportFailureIsNoConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := testClient(srv.URL, nil).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, nil)
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
}

func TestInvalidURL(t *testing.T) {
	err := testClient("://not-a-url", nil).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, nil)
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestAuth401RefreshesAndRetriesOnce(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	creds := newFakeCreds("stale", "")
	creds.refreshTo = "fresh"

	var resp MessageResponse
	err := testClient(srv.URL, creds).do(context.Background(), call{method: http.MethodGet, endpoint: "/x", authenticated: true}, &resp)
	if err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if got := atomic.LoadInt32(&creds.refreshCalls); got != 1 {
		t.Fatalf("expected 1 refresh, got %d", got)
	}
}

func TestAuthDouble401SurfacesUnauthorized(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := newFakeCreds("stale", "")
	creds.refreshTo = "still-rejected"

	err := testClient(srv.URL, creds).do(context.Background(), call{method: http.MethodGet, endpoint: "/x", authenticated: true}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
	if got := atomic.LoadInt32(&creds.refreshCalls); got != 1 {
		t.Fatalf("expected 1 refresh, got %d", got)
	}
}

func TestAuth401RefreshFailureSurfacesUnauthorized(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := newFakeCreds("stale", "")
	creds.refreshErr = errors.New("backend down")

	err := testClient(srv.URL, creds).do(context.Background(), call{method: http.MethodGet, endpoint: "/x", authenticated: true}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestHeaders(t *testing.T) {
	var gotAuth, gotDevice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDevice = r.Header.Get("X-Device-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	creds := newFakeCreds("tok", "device-1")
	err := testClient(srv.URL, creds).do(context.Background(), call{
		method: http.MethodGet, endpoint: "/x",
		authenticated: true, includeDeviceID: true,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotDevice != "device-1" {
		t.Fatalf("unexpected device header: %q", gotDevice)
	}

	// Unauthenticated calls carry neither header.
	err = testClient(srv.URL, creds).do(context.Background(), call{method: http.MethodGet, endpoint: "/x"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" || gotDevice != "" {
		t.Fatalf("expected no headers, got auth=%q device=%q", gotAuth, gotDevice)
	}
}
