/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/url"
)

// ClientError is returned by DoRequest* functions when a downstream request fails
// or the downstream service answers with an unexpected status.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Err        error
}

func (e *ClientError) wrap(message string, err error) *ClientError {
	e.Message = message
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	str := fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s", e.Method, e.URL.Redacted(), e.StatusCode, e.Message)
	if e.Err != nil {
		str += fmt.Sprintf(" error: %s", e.Err.Error())
	}
	return str
}

// Is allows to check the underlying error with errors.Is.
func (e *ClientError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}
