// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time scans a TIMESTAMP column whether the driver returns time.Time or
// the text form SQLite keeps on disk.
type Time struct {
	T *time.Time
}

func (t Time) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t.T = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		*t.T = time.Unix(v, 0).UTC()
		return nil
	case nil:
		*t.T = time.Time{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (t Time) parse(s string) error {
	s = strings.TrimSpace(s)
	// time.Time.String() appends a monotonic clock reading.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t.T = parsed
			return nil
		}
	}
	if parsed, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", s); err == nil {
		*t.T = parsed
		return nil
	}
	return fmt.Errorf("cannot parse time %q", s)
}
