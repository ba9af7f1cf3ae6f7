/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/leadforge/siteapi/log"
)

type loggableIntMap map[string]int64

func (lm loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for key, value := range lm {
		e.EncodeFieldInt64(key, value)
	}
	return nil
}

// LoggingParams stores parameters for the Logging middleware
// that may be modified dynamically by the underlying middlewares and handlers
// (e.g. a handler reports whether the response was served from the cache).
type LoggingParams struct {
	mu        sync.Mutex
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields extends list of fields that will be logged by the Logging middleware.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotDurationInMs sets (if new) or adds duration value in milliseconds to the element of the time_slots map.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.timeSlots == nil {
		lp.timeSlots = make(loggableIntMap, 1)
	}
	lp.timeSlots[name] += dur.Milliseconds()
}

func (lp *LoggingParams) fieldsToLog() []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fields := append([]log.Field(nil), lp.fields...)
	if len(lp.timeSlots) != 0 {
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: lp.timeSlots})
	}
	return fields
}
