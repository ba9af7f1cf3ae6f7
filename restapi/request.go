/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/leadforge/siteapi/log"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// NewMalformedRequestError creates a MalformedRequestError with 400 status code.
func NewMalformedRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes int64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(uint64(maxSizeBytes))),
	}
}

// DecodeRequestJSON reads the request body and decodes it as a single JSON object.
// Unknown fields are rejected. Any decoding problem is returned as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Failed to parse Content-Type header: %s.", err),
			}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return convertDecodeError(err)
	}
	// Decoder is designed to decode streams of JSON objects, but we need to prevent this behavior.
	if decoder.More() {
		return NewMalformedRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

func convertDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, io.EOF):
		return NewMalformedRequestError("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewMalformedRequestError("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return NewMalformedRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field != "" {
			return NewMalformedRequestError("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset)
		}
		return NewMalformedRequestError("Request body contains an invalid value of type %q.", unmarshalTypeErr.Value)
	case errors.As(err, &maxBytesErr):
		return NewTooLargeMalformedRequestError(maxBytesErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return NewMalformedRequestError("Request body contains unknown field %s.", strings.TrimPrefix(err.Error(), "json: unknown field "))
	}
	return err
}

// RespondMalformedRequestOrInternalError responds with the status code of *MalformedRequestError
// or with 500 for any other error.
func RespondMalformedRequestOrInternalError(
	rw http.ResponseWriter, err error, requestID string, isProduction bool, logger log.FieldLogger,
) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondError(rw, ErrorParams{
			Message:      reqErr.Message,
			StatusCode:   reqErr.HTTPStatusCode,
			RequestID:    requestID,
			IsProduction: isProduction,
		}, logger)
		return
	}
	RespondInternalError(rw, err, requestID, isProduction, logger)
}
