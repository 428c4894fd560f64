package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/getmockd/mocklane/pkg/logging"
)

// TimeFormat is the timestamp layout of the "ts" field.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Fields are the free-form attributes of an event. Callers hand ownership of
// the map to the logger and must not modify it afterwards.
type Fields map[string]any

// Event is one structured log record. Events are immutable once logged.
type Event struct {
	Time   time.Time
	Level  logging.Level
	Name   string
	Fields Fields
}

// reserved keys always win over fields of the same name.
var reserved = map[string]bool{"ts": true, "level": true, "event": true}

// MarshalJSON encodes the event as one flat object:
// {"ts":...,"level":...,"event":...,<fields sorted by key>}.
func (e *Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"ts":`)
	writeJSON(&buf, e.Time.UTC().Format(TimeFormat))
	buf.WriteString(`,"level":`)
	writeJSON(&buf, logging.LevelName(e.Level))
	buf.WriteString(`,"event":`)
	writeJSON(&buf, e.Name)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		writeJSON(&buf, k)
		buf.WriteByte(':')
		writeJSON(&buf, e.Fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the flat form produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Fields: Fields{}}
	if ts, ok := raw["ts"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("invalid ts %q: %w", ts, err)
		}
		e.Time = t
	}
	if lvl, ok := raw["level"].(string); ok {
		e.Level = logging.ParseLevel(lvl)
	}
	if name, ok := raw["event"].(string); ok {
		e.Name = name
	}
	for k, v := range raw {
		if !reserved[k] {
			e.Fields[k] = v
		}
	}
	return nil
}

// writeJSON encodes v, falling back to its fmt representation when v cannot
// be encoded so one bad field never loses the whole event.
func writeJSON(buf *bytes.Buffer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	buf.Write(data)
}
