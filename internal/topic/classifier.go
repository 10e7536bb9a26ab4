package topic

import "strings"

// Parse splits a raw topic into a Descriptor.
//
// It succeeds only for exactly six non-empty segments whose first segment is
// Prefix and whose third segment is a known data class. Any other shape
// returns false; callers log and drop. Parse never panics.
func Parse(raw string) (Descriptor, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != segmentCount {
		return Descriptor{}, false
	}
	for _, p := range parts {
		if p == "" {
			return Descriptor{}, false
		}
	}
	if parts[0] != Prefix {
		return Descriptor{}, false
	}

	class := DataClass(parts[2])
	if !class.Valid() {
		return Descriptor{}, false
	}

	return Descriptor{
		Prefix:           parts[0],
		SiteID:           parts[1],
		DataClass:        class,
		DeviceExternalID: parts[3],
		DeviceCategory:   parts[4],
		GatewaySerial:    parts[5],
	}, true
}

// KindOf maps a raw device category onto a canonical Kind.
//
// Matching is case-insensitive. Exact names are checked first, then
// substrings in a fixed order: battery, inverter, load, mppt, pv. The order
// matters because some firmware names contain more than one marker.
func KindOf(category string) Kind {
	c := strings.ToLower(category)

	switch c {
	case "system", "ehub":
		return KindGateway
	case "chint":
		return KindMeter
	}

	switch {
	case strings.Contains(c, "battery"):
		return KindInverterBattery
	case strings.Contains(c, "inverter"):
		return KindInverterCore
	case strings.Contains(c, "load"):
		return KindInverterLoad
	case strings.Contains(c, "mppt"):
		return KindInverterMPPT
	case strings.Contains(c, "pv"):
		return KindInverterPV
	}

	return KindUnknown
}

// HistoryWildcard matches every site's history topics.
//
// Example: data/+/history/#
func HistoryWildcard() string {
	return Prefix + "/+/" + string(ClassHistory) + "/#"
}

// RealtimeWildcard matches every site's realtime topics.
//
// Example: data/+/realtime/#
func RealtimeWildcard() string {
	return Prefix + "/+/" + string(ClassRealtime) + "/#"
}

// SiteRealtimePattern matches the realtime topics of one site.
//
// Example: data/site-01/realtime/#
func SiteRealtimePattern(siteID string) string {
	return Prefix + "/" + siteID + "/" + string(ClassRealtime) + "/#"
}
