package models

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for lot target times. Zone-less values are read in the
// caller's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTargetTime reads an RFC 3339 timestamp, or a zone-less ISO 8601 one
// interpreted in loc.
func ParseTargetTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid target time %q", s)
}
