package storage

import (
	"errors"
	"time"
)

// NullableString maps the empty string to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime formats a timestamp for storage, mapping nil and zero to NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// FormatTime renders a timestamp in the stored layout.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// BoolToInt converts a flag to SQLite's integer boolean.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// ParseTime parses a stored timestamp.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// ParseTimePtr parses a nullable stored timestamp.
func ParseTimePtr(value string) *time.Time {
	t, err := ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}

// Placeholders returns count comma-separated bind markers.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
