package bus_test

import (
	"context"
	"testing"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/bus/bustest"
)

func TestProbe(t *testing.T) {
	drivers := map[string]*bustest.Fake{
		"/dev/ttyUSB0": bustest.NewFake(1, 2, 3),
		"/dev/ttyUSB1": bustest.NewFake(),
		"/dev/ttyUSB2": bustest.NewFake(4),
	}
	drivers["/dev/ttyUSB2"].FailNext(bustest.OpOpen, 1)

	ports := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}
	i := 0
	newDriver := func() bus.Driver {
		d := drivers[ports[i]]
		i++
		return d
	}

	found := bus.Probe(context.Background(), ports, bus.DefaultBaudRate, bus.ScanCeiling, newDriver)
	if len(found) != 1 {
		t.Fatalf("Probe found %d ports, want 1: %+v", len(found), found)
	}
	if found[0].Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %s, want /dev/ttyUSB0", found[0].Port)
	}
	if len(found[0].IDs) != 3 {
		t.Errorf("IDs = %v, want 3 actuators", found[0].IDs)
	}
	for port, d := range drivers {
		if d.Calls(bustest.OpClose) != 1 {
			t.Errorf("%s closed %d times, want 1", port, d.Calls(bustest.OpClose))
		}
	}
}

func TestActuatorID_Valid(t *testing.T) {
	tests := []struct {
		id   bus.ActuatorID
		want bool
	}{
		{-1, false},
		{0, true},
		{1, true},
		{252, true},
		{253, false},
		{1000, false},
	}

	for _, tt := range tests {
		if got := tt.id.Valid(); got != tt.want {
			t.Errorf("ActuatorID(%d).Valid() = %v, want %v", tt.id, got, tt.want)
		}
	}
}
