/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"strings"
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/leadforge/siteapi/log"
)

// RecordedEntry is a single logged entry.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the entry's field with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// FieldString returns the string value of the field with the given key.
func (re *RecordedEntry) FieldString(key string) (string, bool) {
	f, ok := re.FindField(key)
	if !ok {
		return "", false
	}
	return string(f.Bytes), true
}

type recordingEntryWriter struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (ew *recordingEntryWriter) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)

	ew.mu.Lock()
	defer ew.mu.Unlock()
	ew.entries = append(ew.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      levelFromLogf(e.Level),
		Time:       e.Time,
		Text:       e.Text,
	})
}

// Recorder is a log.FieldLogger that keeps all logged entries in memory.
// Loggers derived from it via With write into the same storage.
type Recorder struct {
	*log.LogfAdapter
	writer *recordingEntryWriter
}

var _ log.FieldLogger = (*Recorder)(nil)

// NewRecorder returns a Recorder that records entries of all levels.
func NewRecorder() *Recorder {
	ew := &recordingEntryWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, ew)}, ew}
}

// With returns a derived Recorder with additional fields.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.writer}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	return append([]RecordedEntry(nil), r.writer.entries...)
}

// FindEntry returns the first entry with exactly this message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		return entry.Text == msg
	})
}

// FindEntryContaining returns the first entry whose message contains substr.
func (r *Recorder) FindEntryContaining(substr string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		return strings.Contains(entry.Text, substr)
	})
}

// FindEntryByFilter returns the first entry matching the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	for _, entry := range r.writer.entries {
		if filter(entry) {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

// EntriesAtLevel returns all entries logged at the level.
func (r *Recorder) EntriesAtLevel(level log.Level) []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	var res []RecordedEntry
	for _, entry := range r.writer.entries {
		if entry.Level == level {
			res = append(res, entry)
		}
	}
	return res
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.writer.mu.Lock()
	r.writer.entries = nil
	r.writer.mu.Unlock()
}

func levelFromLogf(value logf.Level) log.Level {
	switch value {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
