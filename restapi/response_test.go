/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadforge/siteapi/log/logtest"
)

func TestRespondCodeAndJSON(t *testing.T) {
	t.Run("html is not escaped", func(t *testing.T) {
		rw := httptest.NewRecorder()
		RespondCodeAndJSON(rw, http.StatusCreated, map[string]string{"link": "<a href=\"/x?a=1&b=2\">"}, nil)
		require.Equal(t, http.StatusCreated, rw.Code)
		require.Equal(t, ContentTypeAppJSON, rw.Header().Get("Content-Type"))
		require.Equal(t, `{"link":"<a href=\"/x?a=1&b=2\">"}`, rw.Body.String())
	})

	t.Run("nil data writes only status", func(t *testing.T) {
		rw := httptest.NewRecorder()
		RespondCodeAndJSON(rw, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, rw.Code)
		require.Empty(t, rw.Header().Get("Content-Type"))
		require.Empty(t, rw.Body.String())
	})

	t.Run("marshaling error", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		rw := httptest.NewRecorder()
		RespondCodeAndJSON(rw, http.StatusOK, map[string]interface{}{"ch": make(chan int)}, logRecorder)
		require.Equal(t, http.StatusInternalServerError, rw.Code)
		_, found := logRecorder.FindEntry("error while marshaling json for response body")
		require.True(t, found)
	})
}

func TestRespondSuccess(t *testing.T) {
	rw := httptest.NewRecorder()
	RespondSuccess(rw, http.StatusOK, map[string]int{"temp": 18}, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	require.JSONEq(t, `{"success":true,"data":{"temp":18}}`, rw.Body.String())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name         string
		params       ErrorParams
		wantCode     int
		wantBody     string
		wantDetails  bool
		unwantedText string
	}{
		{
			name:         "production",
			params:       ErrorParams{Message: "Upstream timed out", StatusCode: http.StatusGatewayTimeout, Err: errors.New("context deadline exceeded"), IsProduction: true},
			wantCode:     http.StatusGatewayTimeout,
			wantBody:     `{"success":false,"error":"` + GenericErrorMessage + `"}`,
			unwantedText: "deadline",
		},
		{
			name:     "development without error",
			params:   ErrorParams{Message: "Query parameter \"q\" is required.", StatusCode: http.StatusBadRequest, RequestID: "abc"},
			wantCode: http.StatusBadRequest,
			wantBody: `{"success":false,"error":"Query parameter \"q\" is required.","requestId":"abc"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := httptest.NewRecorder()
			RespondError(rw, tt.params, logtest.NewRecorder())
			require.Equal(t, tt.wantCode, rw.Code)
			require.JSONEq(t, tt.wantBody, rw.Body.String())
			if tt.unwantedText != "" {
				require.NotContains(t, rw.Body.String(), tt.unwantedText)
			}
		})
	}
}

func TestRespondMalformedRequestOrInternalError(t *testing.T) {
	rw := httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(rw, NewMalformedRequestError("Request body must not be empty."), "", false, nil)
	require.Equal(t, http.StatusBadRequest, rw.Code)
	require.JSONEq(t, `{"success":false,"error":"Request body must not be empty."}`, rw.Body.String())

	rw = httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(rw, errors.New("unexpected"), "", true, nil)
	require.Equal(t, http.StatusInternalServerError, rw.Code)
	require.JSONEq(t, `{"success":false,"error":"`+GenericErrorMessage+`"}`, rw.Body.String())
}
