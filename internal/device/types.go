package device

import "time"

// Device is a physical unit reporting through a site gateway.
//
// ExternalID is the identifier carried in MQTT topics. It is unique only
// within a site, so lookups always pair it with SiteID.
type Device struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	SiteID     string     `json:"siteId"`
	ExternalID string     `json:"externalId"`
	Name       string     `json:"name"`
	DeviceType string     `json:"deviceType"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// DeepCopy returns an independent copy of d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		cp.LastSeenAt = &t
	}
	return &cp
}

// Validate checks the fields required to store a device.
func (d *Device) Validate() error {
	switch {
	case d.ID == "":
		return ErrInvalidDevice
	case d.ProjectID == "":
		return ErrInvalidDevice
	case d.ExternalID == "":
		return ErrInvalidDevice
	case d.Name == "":
		return ErrInvalidDevice
	}
	return nil
}
