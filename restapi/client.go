/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/leadforge/siteapi/log"
)

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

// maxErrorBodySize limits how much of a non-2xx response body is kept in ClientError.
const maxErrorBodySize = 255

// DoRequest does the HTTP request and logs its details.
// Transport errors (including timeouts) are returned as *ClientError wrapping the original error.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sent request", log.String(logKeyMethod, req.Method), log.String(logKeyURI, req.URL.Redacted()))
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL.Redacted()),
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.Redacted()),
			log.Error(err),
		)
		return nil, (&ClientError{Method: req.Method, URL: req.URL}).wrap("do request", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.Redacted()),
			log.Int(logKeyStatus, resp.StatusCode),
		)
	})
	return resp, nil
}

// DoRequestAndDecodeJSON does the HTTP request and decodes a 2xx response body as JSON into result
// (result may be nil if the body is not needed). Any other status is returned as *ClientError.
func DoRequestAndDecodeJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		return err // already logged
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body", log.String(logKeyURI, req.URL.Redacted()), log.Error(closeErr))
		}
	}()

	clientErr := &ClientError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	logger = logger.With(
		log.String(logKeyMethod, req.Method),
		log.String(logKeyURI, req.URL.Redacted()),
		log.Int(logKeyStatus, resp.StatusCode),
	)

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("error reading response body", log.Error(err))
		return clientErr.wrap("reading response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(buf) > maxErrorBodySize {
			buf = buf[:maxErrorBodySize]
		}
		clientErr.Message = fmt.Sprintf("unexpected status code, body: %q", buf)
		logger.Warn("unexpected status code in response")
		return clientErr
	}

	if result == nil {
		return nil
	}
	if len(buf) == 0 {
		clientErr.Message = "empty response"
		logger.Error("empty response")
		return clientErr
	}
	if err = json.Unmarshal(buf, result); err != nil {
		logger.Error("error unmarshaling response", log.Error(err))
		return clientErr.wrap("unmarshaling response", err)
	}
	return nil
}

// NewJSONRequest performs JSON marshaling of the passed data and creates a new http.Request bound to ctx.
func NewJSONRequest(ctx context.Context, method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := jsonMarshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
