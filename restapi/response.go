/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/leadforge/siteapi/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// SuccessResponse is the body of a succeeded request.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(v)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondJSON sends response with 200 HTTP status code, does JSON marshaling of data and writes result in response's body.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs JSON marshaling of the data and
// writes the result to the response's body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	respJSON, err := jsonMarshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil {
		if logger != nil {
			logger.Error("error while writing response body", log.Error(err))
		}
	}
}

// RespondSuccess writes {"success":true,"data":...} with the passed status code.
func RespondSuccess(rw http.ResponseWriter, statusCode int, data interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, statusCode, SuccessResponse{Success: true, Data: data}, logger)
}

// RespondErrorResponse writes the standardized error response built by NewErrorResponse.
func RespondErrorResponse(rw http.ResponseWriter, resp *ErrorResponse, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, resp.StatusCode, resp, logger)
}

// RespondError builds the standardized error response from params, logs it and writes it.
func RespondError(rw http.ResponseWriter, params ErrorParams, logger log.FieldLogger) {
	RespondErrorResponse(rw, NewErrorResponse(logger, params), logger)
}

// RespondInternalError sends response with 500 HTTP status code and the standardized error in body.
func RespondInternalError(rw http.ResponseWriter, err error, requestID string, isProduction bool, logger log.FieldLogger) {
	RespondError(rw, ErrorParams{Err: err, RequestID: requestID, IsProduction: isProduction}, logger)
}
