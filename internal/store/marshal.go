package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout keeps full precision and the zone offset, so an exported log
// shows the same wall-clock timestamps as the original file.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalTime converts a time to TEXT for storage.
func marshalTime(t time.Time) string {
	return t.Format(timeLayout)
}

// unmarshalTime parses TEXT written by marshalTime.
func unmarshalTime(data string) (time.Time, error) {
	t, err := time.Parse(timeLayout, data)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal time %q: %w", data, err)
	}
	return t, nil
}

// marshalNullTime stores a zero time as NULL.
func marshalNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: marshalTime(t), Valid: true}
}

// unmarshalNullTime returns nil for NULL.
func unmarshalNullTime(data sql.NullString) (*time.Time, error) {
	if !data.Valid {
		return nil, nil
	}
	t, err := unmarshalTime(data.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
