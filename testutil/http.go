/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type tHelper interface {
	Helper()
}

// ErrorResponseBody is the standardized error body ({"success":false,"error":"...","details":{...},"requestId":"..."}).
type ErrorResponseBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details *struct {
		Message string `json:"message"`
		Stack   string `json:"stack"`
	} `json:"details"`
	RequestID string `json:"requestId"`
}

type successResponseBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains the standardized error
// with the wanted status code and message. The decoded body is returned for further checks.
func RequireErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantMessage string,
) ErrorResponseBody {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantMessage)
}

// RequireErrorInResponse asserts that passing http.Response contains the standardized error.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantMessage string) ErrorResponseBody {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantMessage)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantMessage string,
) ErrorResponseBody {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var errResp ErrorResponseBody
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.False(t, errResp.Success)
	require.Equal(t, wantMessage, errResp.Error)
	return errResp
}

// RequireSuccessInRecorder asserts that passing httptest.ResponseRecorder contains {"success":true,"data":...}
// with the wanted status code, and decodes the data into dest.
func RequireSuccessInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireSuccessInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, dest)
}

// RequireSuccessInResponse asserts that passing http.Response contains {"success":true,"data":...}.
func RequireSuccessInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireSuccessInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, dest)
}

func requireSuccessInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, dest interface{},
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var succResp successResponseBody
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(body).Decode(&succResp))
	require.True(t, succResp.Success)
	if dest != nil {
		require.NoError(t, json.Unmarshal(succResp.Data, dest))
	}
}

// RequireEmptyBodyInRecorder asserts that passing httptest.ResponseRecorder contains empty body.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBodyInResponse(t, resp.Body)
}

// RequireEmptyBodyInResponse asserts that passing http.Response contains empty body.
func RequireEmptyBodyInResponse(t require.TestingT, resp *http.Response) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireEmptyBodyInResponse(t, resp.Body)
}

func requireEmptyBodyInResponse(t require.TestingT, body io.Reader) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, 0, len(bodyBytes))
}

// RequireStringJSONInRecorder asserts that passing httptest.ResponseRecorder contains the json string.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSONInResponse(t, resp.Header(), resp.Body, want)
}

// RequireStringJSONInResponse asserts that passing http.Response contains the json string.
func RequireStringJSONInResponse(t require.TestingT, resp *http.Response, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireStringJSONInResponse(t, resp.Header, resp.Body, want)
}

func requireStringJSONInResponse(t require.TestingT, header http.Header, body io.Reader, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.JSONEq(t, want, string(bodyBytes))
}
