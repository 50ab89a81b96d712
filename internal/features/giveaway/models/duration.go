package models

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration format, use e.g. 30s, 5m, 1h, 1d")

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDuration parses the command-layer duration syntax (e.g. "30m", "1h",
// "2d") into a time.Duration. Zero and malformed values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, ErrInvalidDuration
	}

	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrInvalidDuration
	}

	return time.Duration(value) * durationUnits[match[2]], nil
}
