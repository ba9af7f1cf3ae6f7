/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/log/logtest"
	"github.com/leadforge/siteapi/retry"
)

var noWaitPolicy = retry.PolicyFunc(func() backoff.BackOff { return &backoff.ZeroBackOff{} })

type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	bodies   []string
	attempts []string
}

// newRecordingServer answers with statuses in order, the last one is repeated.
func newRecordingServer(t *testing.T, statuses ...int) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		n := len(rs.bodies)
		rs.bodies = append(rs.bodies, string(body))
		rs.attempts = append(rs.attempts, r.Header.Get(RetryAttemptNumberHeader))
		rs.mu.Unlock()
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		rw.WriteHeader(statuses[n])
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) requestsCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.bodies)
}

func newTestRetryableRoundTripper(t *testing.T, maxAttempts int) *RetryableRoundTripper {
	t.Helper()
	rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
		MaxRetryAttempts: maxAttempts,
		BackoffPolicy:    noWaitPolicy,
	})
	require.NoError(t, err)
	return rt
}

func TestNewRetryableRoundTripperWithOpts(t *testing.T) {
	_, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{MaxRetryAttempts: -5})
	require.ErrorContains(t, err, "incorrect max retry attempts")

	rt, err := NewRetryableRoundTripper(http.DefaultTransport)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRetryAttempts, rt.MaxRetryAttempts)
	require.NotNil(t, rt.CheckRetry)
	require.NotNil(t, rt.BackoffPolicy)
}

func TestRetryableRoundTripper_RoundTrip(t *testing.T) {
	t.Run("GET is retried on 5xx until success", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)
		resp, err := doGet(t, context.Background(), newTestRetryableRoundTripper(t, 5), server.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, []string{"", "1", "2"}, server.attempts)
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusInternalServerError)
		resp, err := doGet(t, context.Background(), newTestRetryableRoundTripper(t, 2), server.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, 3, server.requestsCount())
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusBadRequest)
		resp, err := doGet(t, context.Background(), newTestRetryableRoundTripper(t, 2), server.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, 1, server.requestsCount())
	})

	t.Run("POST is not retried on 5xx without idempotent hint", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusBadGateway, http.StatusOK)
		req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"a":1}`))
		require.NoError(t, err)
		resp, err := newTestRetryableRoundTripper(t, 2).RoundTrip(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		require.Equal(t, 1, server.requestsCount())
	})

	t.Run("POST with idempotent hint is retried and body is resent", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusBadGateway, http.StatusOK)
		ctx := NewContextWithIdempotentHint(context.Background(), true)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, bytes.NewBufferString(`{"a":1}`))
		require.NoError(t, err)
		resp, err := newTestRetryableRoundTripper(t, 2).RoundTrip(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, []string{`{"a":1}`, `{"a":1}`}, server.bodies)
	})

	t.Run("seekable body is rewound", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusTooManyRequests, http.StatusOK)
		req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
		require.NoError(t, err)
		req.Body = seekableBody{strings.NewReader("payload")}
		resp, err := newTestRetryableRoundTripper(t, 2).RoundTrip(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, []string{"payload", "payload"}, server.bodies)
	})

	t.Run("Retry-After is respected", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				rw.Header().Set("Retry-After", "1")
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		start := time.Now()
		resp, err := doGet(t, context.Background(), newTestRetryableRoundTripper(t, 1), server.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.GreaterOrEqual(t, time.Since(start), time.Second)
	})

	t.Run("context canceled while waiting", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusServiceUnavailable)
		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 3,
			BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Hour, 0),
		})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		resp, err := doGet(t, ctx, rt, server.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, 1, server.requestsCount())
	})

	t.Run("temporary transport errors are retried", func(t *testing.T) {
		attempts := 0
		rt, err := NewRetryableRoundTripperWithOpts(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			if attempts < 3 {
				return nil, io.ErrUnexpectedEOF
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}), RetryableRoundTripperOpts{MaxRetryAttempts: 5, BackoffPolicy: noWaitPolicy})
		require.NoError(t, err)
		resp, err := doGet(t, context.Background(), rt, "http://upstream.invalid")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 3, attempts)
	})

	t.Run("logs when attempts are exhausted", func(t *testing.T) {
		server := newRecordingServer(t, http.StatusInternalServerError)
		logRecorder := logtest.NewRecorder()
		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 1,
			BackoffPolicy:    noWaitPolicy,
			LoggerProvider:   func(context.Context) log.FieldLogger { return logRecorder },
		})
		require.NoError(t, err)
		_, err = doGet(t, context.Background(), rt, server.URL)
		require.NoError(t, err)
		entry, found := logRecorder.FindEntry("max retry attempts exceeded")
		require.True(t, found)
		requestsDone, found := entry.FindField("requests_done")
		require.True(t, found)
		require.Equal(t, int64(2), requestsDone.Int)
	})
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		value  string
		want   time.Duration
		wantOK bool
	}{
		{value: "", wantOK: false},
		{value: "5", want: 5 * time.Second, wantOK: true},
		{value: "-1", wantOK: false},
		{value: "soon", wantOK: false},
		{value: time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), want: 0, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.value != "" {
				resp.Header.Set("Retry-After", tt.value)
			}
			got, ok := parseRetryAfter(resp)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
	got, ok := parseRetryAfter(resp)
	require.True(t, ok)
	require.Greater(t, got, 50*time.Second)
}

type seekableBody struct{ *strings.Reader }

func (seekableBody) Close() error { return nil }

type temporaryErr struct{ temporary bool }

func (e temporaryErr) Error() string   { return "temporary: " + strconv.FormatBool(e.temporary) }
func (e temporaryErr) Temporary() bool { return e.temporary }

func TestCheckErrorIsTemporary(t *testing.T) {
	require.True(t, CheckErrorIsTemporary(io.EOF))
	require.True(t, CheckErrorIsTemporary(fmt.Errorf("read: %w", io.ErrUnexpectedEOF)))
	require.True(t, CheckErrorIsTemporary(temporaryErr{temporary: true}))
	require.False(t, CheckErrorIsTemporary(temporaryErr{temporary: false}))
	require.True(t, CheckErrorIsTemporary(&net.DNSError{IsTimeout: true}))
	require.False(t, CheckErrorIsTemporary(errors.New("permanent")))
}
