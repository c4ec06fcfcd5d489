package robot

import (
	"math"
	"testing"

	"github.com/gwillem/armctl/pkg/bus"
)

func TestJointCalibration_Normalize(t *testing.T) {
	cal := JointCalibration{
		RangeMin: 1000,
		RangeMax: 3000,
	}

	tests := []struct {
		raw      bus.Ticks
		expected float64
	}{
		{1000, -100.0}, // min -> -100
		{3000, 100.0},  // max -> 100
		{2000, 0.0},    // mid -> 0
		{1500, -50.0},  // quarter -> -50
		{2500, 50.0},   // three-quarter -> 50
	}

	for _, tt := range tests {
		got := cal.Normalize(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}

	if got := (JointCalibration{}).Normalize(1234); got != 0 {
		t.Errorf("Normalize on empty range = %f, want 0", got)
	}
}

func TestJointCalibration_Denormalize(t *testing.T) {
	cal := JointCalibration{
		RangeMin: 1000,
		RangeMax: 3000,
	}

	tests := []struct {
		norm     float64
		expected bus.Ticks
	}{
		{-100.0, 1000}, // -100 -> min
		{100.0, 3000},  // 100 -> max
		{0.0, 2000},    // 0 -> mid
		{-50.0, 1500},  // -50 -> quarter
		{50.0, 2500},   // 50 -> three-quarter
	}

	for _, tt := range tests {
		got := cal.Denormalize(tt.norm)
		if got != tt.expected {
			t.Errorf("Denormalize(%f) = %d, want %d", tt.norm, got, tt.expected)
		}
	}
}

func TestJointCalibration_RoundTrip(t *testing.T) {
	cal := JointCalibration{
		RangeMin: 823,
		RangeMax: 3540,
	}

	// Test round-trip: raw -> normalized -> raw
	for raw := bus.Ticks(cal.RangeMin); raw <= bus.Ticks(cal.RangeMax); raw += 100 {
		norm := cal.Normalize(raw)
		back := cal.Denormalize(norm)
		if math.Abs(float64(back-raw)) > 1 {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, norm, back)
		}
	}
}

func TestCalibration_IDs(t *testing.T) {
	cal := DefaultCalibration()

	ids := cal.IDs()
	expected := []bus.ActuatorID{1, 2, 3, 4, 5, 6, 7}

	if len(ids) != len(expected) {
		t.Fatalf("IDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("IDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		Waist:   JointCalibration{ID: 1, RangeMin: 100, RangeMax: 200},
		Gripper: JointCalibration{ID: 7, RangeMin: 300, RangeMax: 400},
	}

	// Test finding existing ID
	name, jc, ok := cal.ByID(1)
	if !ok {
		t.Fatal("ByID(1) returned false")
	}
	if name != Waist {
		t.Errorf("ByID(1) returned name %s, want waist", name)
	}
	if jc.RangeMin != 100 {
		t.Errorf("ByID(1) returned wrong calibration: %+v", jc)
	}

	// Test non-existing ID
	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
	if got := cal.Name(99); got != "id99" {
		t.Errorf("Name(99) = %s, want id99", got)
	}
}

func TestCalibration_Limits(t *testing.T) {
	cal := Calibration{
		Waist:   JointCalibration{ID: 1, RangeMin: 100, RangeMax: 200},
		Gripper: JointCalibration{ID: 7},
	}

	if lo, hi := cal.Limits(1); lo != 100 || hi != 200 {
		t.Errorf("Limits(1) = %d, %d, want 100, 200", lo, hi)
	}
	if lo, hi := cal.Limits(7); lo != 0 || hi != 0 {
		t.Errorf("Limits(7) = %d, %d, want 0, 0", lo, hi)
	}
	if lo, hi := cal.Limits(42); lo != 0 || hi != 0 {
		t.Errorf("Limits(42) = %d, %d, want 0, 0", lo, hi)
	}
}
