package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Candidate is a serial port with the actuators that answered on it.
type Candidate struct {
	Port string
	IDs  []ActuatorID
}

// ListPorts returns serial ports that could carry a servo bus.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var out []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out, nil
}

// Probe opens every port with a fresh driver from newDriver and scans it.
// Ports that fail to open or answer with no actuators are left out.
func Probe(ctx context.Context, ports []string, baud, ceiling int, newDriver func() Driver) []Candidate {
	var found []Candidate
	for _, port := range ports {
		ids := probePort(ctx, port, baud, ceiling, newDriver())
		if len(ids) > 0 {
			found = append(found, Candidate{Port: port, IDs: ids})
		}
	}
	return found
}

func probePort(ctx context.Context, port string, baud, ceiling int, d Driver) []ActuatorID {
	defer d.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := d.Open(ctx, port, baud); err != nil {
		return nil
	}
	ids, err := d.Scan(ctx, ceiling)
	if err != nil {
		return nil
	}
	return ids
}
