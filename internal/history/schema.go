package history

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/telemetry-core/internal/topic"
)

// coercion selects how a wire value is converted for its column.
type coercion int

const (
	asText coercion = iota
	asFloat
	asInt
)

// field maps one payload key to one table column.
type field struct {
	key    string
	column string
	coerce coercion
}

// tableSpec describes the sink shape of one canonical device kind.
type tableSpec struct {
	kind   topic.Kind
	table  string
	prefix *regexp.Regexp // stripped from payload keys; nil for none
	fields []field

	insertSQL string
	selectSQL string
}

var (
	inverterPrefix = regexp.MustCompile(`^INV_\d+_`)
	meterPrefix    = regexp.MustCompile(`^CHINT_\d+_`)
)

var specs = map[topic.Kind]*tableSpec{
	topic.KindGateway:         {table: "gateway_history", fields: gatewayFields},
	topic.KindMeter:           {table: "meter_history", prefix: meterPrefix, fields: meterFields},
	topic.KindInverterBattery: {table: "inverter_battery_history", prefix: inverterPrefix, fields: batteryFields},
	topic.KindInverterCore:    {table: "inverter_core_history", prefix: inverterPrefix, fields: inverterCoreFields},
	topic.KindInverterLoad:    {table: "inverter_load_history", prefix: inverterPrefix, fields: loadFields},
	topic.KindInverterMPPT:    {table: "inverter_mppt_history", prefix: inverterPrefix, fields: mpptFields},
	topic.KindInverterPV:      {table: "inverter_pv_history", prefix: inverterPrefix, fields: pvFields()},
}

func init() {
	for kind, spec := range specs {
		spec.kind = kind
		columns := spec.columns()

		spec.insertSQL = fmt.Sprintf("INSERT INTO %s (device_id, terminal_time, group_name, %s) VALUES (?, ?, ?%s)",
			spec.table, strings.Join(columns, ", "), strings.Repeat(", ?", len(columns)))
		spec.selectSQL = fmt.Sprintf("SELECT terminal_time, group_name, created_at, %s FROM %s",
			strings.Join(columns, ", "), spec.table)
	}
}

// specFor returns the sink shape for kind.
func specFor(kind topic.Kind) (*tableSpec, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return spec, nil
}

// Table returns the SQLite table holding samples of kind.
func Table(kind topic.Kind) (string, error) {
	spec, err := specFor(kind)
	if err != nil {
		return "", err
	}
	return spec.table, nil
}

func (s *tableSpec) columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.column
	}
	return cols
}

// coerce converts a decoded JSON value for storage. Missing, null, empty
// and unparseable values become nil (stored as NULL), never zero.
func coerce(c coercion, v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}

	switch c {
	case asText:
		return toText(v)
	case asFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		return f
	case asInt:
		f, ok := toFloat(v)
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil
		}
		return int64(math.Trunc(f))
	}
	return nil
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
