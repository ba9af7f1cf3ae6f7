/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents an options for Recovery middleware.
type RecoveryOpts struct {
	StackSize int

	// IsProduction hides the panic value from the response body.
	IsProduction bool
}

// PanicError is passed to the standardized error response when a handler panics.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Format renders the stack for "%+v", so it ends up in the error details.
func (e *PanicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && len(e.Stack) != 0 {
		_, _ = fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

type recoveryHandler struct {
	next http.Handler
	opts RecoveryOpts
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace,
// and responds with 500 HTTP status code and the standardized error in body.
func Recovery(isProduction bool) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(RecoveryOpts{StackSize: RecoveryDefaultStackSize, IsProduction: isProduction})
}

// RecoveryWithOpts is a more configurable version of Recovery middleware.
func RecoveryWithOpts(opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			logger := GetLoggerFromContext(r.Context())

			if p == http.ErrAbortHandler {
				// ErrAbortHandler is a sentinel panic for aborting a handler, net/http doesn't log its stack.
				// It's a common practice to continue panic propagation in this case.
				if logger != nil {
					logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
				}
				panic(p)
			}

			panicErr := &PanicError{Value: p}
			if h.opts.StackSize != 0 {
				stack := make([]byte, h.opts.StackSize)
				panicErr.Stack = stack[:runtime.Stack(stack, false)]
			}
			if logger != nil {
				logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", panicErr.Stack))
			}

			restapi.RespondError(rw, restapi.ErrorParams{
				StatusCode:   http.StatusInternalServerError,
				Message:      restapi.ErrMessageInternal,
				Err:          panicErr,
				RequestID:    GetRequestIDFromContext(r.Context()),
				IsProduction: h.opts.IsProduction,
			}, logger)
		}
	}()

	h.next.ServeHTTP(rw, r)
}
