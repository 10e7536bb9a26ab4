package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // drop the sample
//	}
var (
	// ErrDeviceNotFound is returned when no device matches a lookup.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose external id
	// is already registered in the same project.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device is missing required fields.
	ErrInvalidDevice = errors.New("device: invalid")
)
