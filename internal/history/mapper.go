package history

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/telemetry-core/internal/topic"
)

// timeLayout has fixed-width fractions so terminal_time sorts as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Row is one payload mapped onto its kind's table.
type Row struct {
	Kind         topic.Kind
	DeviceID     string
	TerminalTime time.Time
	GroupName    string
	// Values holds one entry per table column, in schema order.
	Values []any

	spec *tableSpec
}

// Fields returns the non-null column values keyed by column name.
func (r Row) Fields() map[string]any {
	out := make(map[string]any, len(r.Values))
	for i, f := range r.spec.fields {
		if r.Values[i] != nil {
			out[f.column] = r.Values[i]
		}
	}
	return out
}

// MapPayload maps a decoded payload onto the table for kind.
//
// Instance prefixes (INV_<n>_, CHINT_<n>_) are stripped from keys first.
// When two keys strip to the same name the lexically greatest original
// key wins. The terminal time falls back to receivedAt when absent or
// unparseable.
func MapPayload(kind topic.Kind, deviceID string, payload map[string]any, receivedAt time.Time) (Row, error) {
	spec, err := specFor(kind)
	if err != nil {
		return Row{}, err
	}

	clean := stripPrefixes(spec, payload)

	row := Row{
		Kind:         kind,
		DeviceID:     deviceID,
		TerminalTime: parseTerminalTime(payload[topic.KeyTerminalTime], receivedAt),
		Values:       make([]any, len(spec.fields)),
		spec:         spec,
	}
	if g, ok := payload[topic.KeyGroupName].(string); ok {
		row.GroupName = g
	}
	for i, f := range spec.fields {
		row.Values[i] = coerce(f.coerce, clean[f.key])
	}
	return row, nil
}

func stripPrefixes(spec *tableSpec, payload map[string]any) map[string]any {
	if spec.prefix == nil {
		return payload
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clean := make(map[string]any, len(payload))
	for _, k := range keys {
		clean[spec.prefix.ReplaceAllString(k, "")] = payload[k]
	}
	return clean
}

// maxEpochMillis is 9999-12-31T23:59:59.999Z.
const maxEpochMillis = 253402300799999

var terminalTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

// parseTerminalTime accepts RFC 3339 strings, "YYYY-MM-DD hh:mm:ss"
// (taken as UTC) and epoch milliseconds as a number or numeric string.
// Epoch values past year 9999 fall back like any other unparseable input.
func parseTerminalTime(v any, fallback time.Time) time.Time {
	switch t := v.(type) {
	case float64:
		if t > 0 && t <= maxEpochMillis {
			return time.UnixMilli(int64(t)).UTC()
		}
	case string:
		s := strings.TrimSpace(t)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 && ms <= maxEpochMillis {
			return time.UnixMilli(ms).UTC()
		}
		for _, layout := range terminalTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return fallback.UTC()
}
