package api

import (
	"fmt"
	"strconv"
	"time"
)

// maxQueryParamLen bounds ids and other path or query values.
const maxQueryParamLen = 128

// parseLimit reads a positive limit, returning def when raw is empty and
// clamping to max.
func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// parseOffset reads a non-negative offset.
func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("offset must be a non-negative integer")
	}
	return n, nil
}

// parseTimeParam reads an optional RFC3339 timestamp.
func parseTimeParam(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", name)
	}
	return t, nil
}

func validID(id string) bool {
	return id != "" && len(id) <= maxQueryParamLen
}
