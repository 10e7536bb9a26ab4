package history

import (
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/topic"
)

var receivedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func value(t *testing.T, row Row, column string) any {
	t.Helper()
	for i, f := range row.spec.fields {
		if f.column == column {
			return row.Values[i]
		}
	}
	t.Fatalf("column %s not in %s", column, row.spec.table)
	return nil
}

func TestMapPayload_InverterPrefix(t *testing.T) {
	row, err := MapPayload(topic.KindInverterBattery, "dev-1", map[string]any{
		"INV_1_battVolt":   "52",
		"INV_1_battCurr":   -12.6,
		"INV_1_battStatus": 0.0,
		"_groupName":       "battery",
		"_terminalTime":    "2026-03-01T11:59:30Z",
	}, receivedAt)
	if err != nil {
		t.Fatalf("MapPayload() error = %v", err)
	}

	if got := value(t, row, "batt_volt"); got != int64(52) {
		t.Errorf("batt_volt = %#v, want 52", got)
	}
	if got := value(t, row, "batt_curr"); got != int64(-12) {
		t.Errorf("batt_curr = %#v, want -12", got)
	}
	if got := value(t, row, "batt_status"); got != int64(0) {
		t.Errorf("batt_status = %#v, want 0 (zero is a value)", got)
	}
	if got := value(t, row, "batt_power"); got != nil {
		t.Errorf("batt_power = %#v, want nil for absent key", got)
	}
	if row.GroupName != "battery" {
		t.Errorf("GroupName = %q", row.GroupName)
	}
	if want := time.Date(2026, 3, 1, 11, 59, 30, 0, time.UTC); !row.TerminalTime.Equal(want) {
		t.Errorf("TerminalTime = %v, want %v", row.TerminalTime, want)
	}
}

func TestMapPayload_MeterPrefix(t *testing.T) {
	row, err := MapPayload(topic.KindMeter, "dev-2", map[string]any{
		"CHINT_3_ua":   "231.4",
		"CHINT_3_irAt": 100.0,
		"freq":         49.98,
		"INV_1_ub":     230.0, // wrong prefix for a meter: not stripped
	}, receivedAt)
	if err != nil {
		t.Fatalf("MapPayload() error = %v", err)
	}

	if got := value(t, row, "ua"); got != 231.4 {
		t.Errorf("ua = %#v", got)
	}
	if got := value(t, row, "ir_at"); got != "100" {
		t.Errorf("ir_at = %#v, want text 100", got)
	}
	if got := value(t, row, "freq"); got != 49.98 {
		t.Errorf("freq = %#v", got)
	}
	if got := value(t, row, "ub"); got != nil {
		t.Errorf("ub = %#v, want nil", got)
	}
	if row.GroupName != "" {
		t.Errorf("GroupName = %q, want empty default", row.GroupName)
	}
	if !row.TerminalTime.Equal(receivedAt) {
		t.Errorf("TerminalTime = %v, want receipt time fallback", row.TerminalTime)
	}
}

func TestMapPayload_GatewayNoStripping(t *testing.T) {
	row, err := MapPayload(topic.KindGateway, "gw", map[string]any{
		"RunTime":        3600.0,
		"CloudOnline":    true,
		"INV_1_BuzzerSw": "1",
	}, receivedAt)
	if err != nil {
		t.Fatalf("MapPayload() error = %v", err)
	}
	if got := value(t, row, "run_time"); got != "3600" {
		t.Errorf("run_time = %#v", got)
	}
	if got := value(t, row, "cloud_online"); got != "true" {
		t.Errorf("cloud_online = %#v", got)
	}
	if got := value(t, row, "buzzer_sw"); got != nil {
		t.Errorf("buzzer_sw = %#v, gateway keys must not be stripped", got)
	}

	fields := row.Fields()
	if len(fields) != 2 {
		t.Errorf("Fields() = %v, want 2 non-null entries", fields)
	}
}

func TestMapPayload_Unknown(t *testing.T) {
	if _, err := MapPayload(topic.KindUnknown, "d", nil, receivedAt); err == nil {
		t.Error("MapPayload(UNKNOWN) expected error")
	}
}

func TestParseTerminalTime(t *testing.T) {
	fallback := receivedAt
	ms := time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"rfc3339", "2026-02-28T08:30:00Z", ms},
		{"rfc3339 offset", "2026-02-28T09:30:00+01:00", ms},
		{"space layout", "2026-02-28 08:30:00", ms},
		{"epoch ms number", float64(ms.UnixMilli()), ms},
		{"epoch ms string", "1772267400000", ms},
		{"garbage", "yesterday", fallback},
		{"missing", nil, fallback},
		{"bool", true, fallback},
		{"epoch ms at two to the 63", 9223372036854775807.0, fallback},
		{"epoch ms huge", 1e300, fallback},
		{"epoch ms past year 9999", float64(maxEpochMillis + 1), fallback},
		{"epoch ms string past year 9999", "253402300800000", fallback},
		{"epoch ms last of year 9999", float64(maxEpochMillis), time.UnixMilli(maxEpochMillis).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTerminalTime(tt.in, fallback); !got.Equal(tt.want) {
				t.Errorf("parseTerminalTime(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
