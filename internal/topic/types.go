package topic

// Prefix is the literal first segment of every telemetry topic.
const Prefix = "data"

// segmentCount is the exact number of segments in a well-formed topic.
const segmentCount = 6

// DataClass selects which pipeline lane a topic belongs to.
type DataClass string

// Data classes carried in the third topic segment.
const (
	ClassHistory  DataClass = "history"
	ClassRealtime DataClass = "realtime"
)

// Valid reports whether c is a known data class.
func (c DataClass) Valid() bool {
	return c == ClassHistory || c == ClassRealtime
}

// Descriptor is the structured form of a telemetry topic.
type Descriptor struct {
	Prefix           string    `json:"prefix"`
	SiteID           string    `json:"siteId"`
	DataClass        DataClass `json:"dataClass"`
	DeviceExternalID string    `json:"deviceId"`
	DeviceCategory   string    `json:"deviceType"`
	GatewaySerial    string    `json:"gatewaySerial"`
}

// String rebuilds the topic the descriptor was parsed from.
func (d Descriptor) String() string {
	return d.Prefix + "/" + d.SiteID + "/" + string(d.DataClass) + "/" +
		d.DeviceExternalID + "/" + d.DeviceCategory + "/" + d.GatewaySerial
}

// Kind returns the canonical device kind for the descriptor's category.
func (d Descriptor) Kind() Kind {
	return KindOf(d.DeviceCategory)
}

// Kind is the pipeline's normalised device category.
type Kind string

// Canonical device kinds.
const (
	KindGateway         Kind = "GATEWAY"
	KindMeter           Kind = "METER"
	KindInverterBattery Kind = "INVERTER_BATTERY"
	KindInverterCore    Kind = "INVERTER_CORE"
	KindInverterLoad    Kind = "INVERTER_LOAD"
	KindInverterMPPT    Kind = "INVERTER_MPPT"
	KindInverterPV      Kind = "INVERTER_PV"
	KindUnknown         Kind = "UNKNOWN"
)

// AllKinds lists every known kind except KindUnknown.
var AllKinds = []Kind{
	KindGateway,
	KindMeter,
	KindInverterBattery,
	KindInverterCore,
	KindInverterLoad,
	KindInverterMPPT,
	KindInverterPV,
}

// IsInverter reports whether k is one of the inverter sub-kinds.
func (k Kind) IsInverter() bool {
	switch k {
	case KindInverterBattery, KindInverterCore, KindInverterLoad, KindInverterMPPT, KindInverterPV:
		return true
	}
	return false
}

// Reserved payload keys. They describe the sample rather than measure anything.
const (
	KeyGroupName    = "_groupName"
	KeyTerminalTime = "_terminalTime"
)
