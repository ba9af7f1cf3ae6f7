/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/log/logtest"
)

type verboseError struct{ msg string }

func (e *verboseError) Error() string { return e.msg }

func (e *verboseError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s\nmain.lookup()\n\t/app/lookup.go:42", e.msg)
		return
	}
	_, _ = fmt.Fprint(s, e.msg)
}

func TestNewErrorResponse(t *testing.T) {
	errDB := errors.New("dial tcp 10.0.0.5:5432: connection refused")

	t.Run("production hides internals", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		resp := NewErrorResponse(logRecorder, ErrorParams{
			Message:      "Failed to save lead",
			StatusCode:   http.StatusBadGateway,
			Err:          errDB,
			RequestID:    "req-1",
			IsProduction: true,
		})

		require.Equal(t, &ErrorResponse{
			StatusCode: http.StatusBadGateway,
			Message:    GenericErrorMessage,
			RequestID:  "req-1",
		}, resp)

		body, err := json.Marshal(resp)
		require.NoError(t, err)
		require.JSONEq(t, `{"success":false,"error":"`+GenericErrorMessage+`","requestId":"req-1"}`, string(body))
		require.NotContains(t, string(body), "connection refused")
		require.NotContains(t, string(body), "Failed to save lead")

		// The detailed error is still logged server side.
		logEntry, found := logRecorder.FindEntry("Failed to save lead")
		require.True(t, found)
		require.Equal(t, log.LevelError, logEntry.Level)
		_, found = logEntry.FindField("error")
		require.True(t, found)
	})

	t.Run("non-production exposes message and details", func(t *testing.T) {
		resp := NewErrorResponse(logtest.NewRecorder(), ErrorParams{
			Message:    "Failed to save lead",
			StatusCode: http.StatusBadGateway,
			Err:        errDB,
		})
		require.Equal(t, "Failed to save lead", resp.Message)
		require.NotNil(t, resp.Details)
		require.Equal(t, errDB.Error(), resp.Details.Message)
		require.NotEmpty(t, resp.Details.Stack)
		require.Empty(t, resp.RequestID)
	})

	t.Run("verbose error renders its own stack", func(t *testing.T) {
		resp := NewErrorResponse(logtest.NewRecorder(), ErrorParams{Message: "Lookup failed", Err: &verboseError{"boom"}})
		require.Equal(t, "boom\nmain.lookup()\n\t/app/lookup.go:42", resp.Details.Stack)
	})

	t.Run("no details without error", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		resp := NewErrorResponse(logRecorder, ErrorParams{Message: "Field \"email\" is invalid.", StatusCode: http.StatusBadRequest})
		require.Nil(t, resp.Details)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		logEntry, found := logRecorder.FindEntry("Field \"email\" is invalid.")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, logEntry.Level)
	})

	t.Run("defaults", func(t *testing.T) {
		resp := NewErrorResponse(nil, ErrorParams{})
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, ErrMessageInternal, resp.Message)
	})
}

func TestErrorResponseMetrics(t *testing.T) {
	MustInitAndRegisterMetrics("test")
	defer UnregisterMetrics()

	rw := httptest.NewRecorder()
	RespondError(rw, ErrorParams{StatusCode: http.StatusServiceUnavailable, Message: "Service unavailable."}, logtest.NewRecorder())
	RespondError(rw, ErrorParams{StatusCode: http.StatusServiceUnavailable, Message: "Service unavailable."}, logtest.NewRecorder())

	require.Equal(t, 2, int(testutil.ToFloat64(metricsResponseErrors.WithLabelValues("503"))))
	require.True(t, strings.HasPrefix(rw.Header().Get("Content-Type"), ContentTypeAppJSON))
}
