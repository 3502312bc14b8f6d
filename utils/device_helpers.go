package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// CreateTestDevice creates an OCCA device for testing, preferring parallel
// backends and falling back to Serial
func CreateTestDevice() (*gocca.OCCADevice, error) {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	var lastErr error
	for _, props := range backends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA backend available: %w", lastErr)
}
