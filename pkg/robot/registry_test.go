package robot

import (
	"errors"
	"testing"

	"github.com/gwillem/armctl/pkg/bus"
)

func TestRegistry_Replace(t *testing.T) {
	tests := []struct {
		name    string
		ids     []bus.ActuatorID
		wantErr error
		wantLen int
	}{
		{"empty", nil, nil, 0},
		{"within capacity", []bus.ActuatorID{1, 2, 3, 4}, nil, 4},
		{"at capacity", []bus.ActuatorID{1, 2, 3, 4, 5, 6, 7, 8}, nil, 8},
		{"over capacity", []bus.ActuatorID{1, 2, 3, 4, 5, 6, 7, 8, 9}, ErrCapacityExceeded, 0},
		{"broadcast id", []bus.ActuatorID{1, 253}, ErrInvalidID, 0},
		{"negative id", []bus.ActuatorID{-1}, ErrInvalidID, 0},
		{"high id is mapped not indexed", []bus.ActuatorID{200, 252}, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(8)
			err := r.Replace(tt.ids)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Replace() error = %v, want %v", err, tt.wantErr)
			}
			if r.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", r.Len(), tt.wantLen)
			}
			if r.Len() > r.Capacity() {
				t.Errorf("Len() %d exceeds capacity %d", r.Len(), r.Capacity())
			}
		})
	}
}

func TestRegistry_ReplaceDuplicate(t *testing.T) {
	r := NewRegistry(8)
	if err := r.Replace([]bus.ActuatorID{3, 3}); err == nil {
		t.Error("Replace() accepted duplicate IDs")
	}
}

func TestRegistry_PositionsOnlyForRegisteredIDs(t *testing.T) {
	r := NewRegistry(8)

	if err := r.SetPosition(5, 100); !errors.Is(err, ErrUnknownID) {
		t.Errorf("SetPosition on empty registry = %v, want ErrUnknownID", err)
	}

	if err := r.Replace([]bus.ActuatorID{5, 6}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Position(5); ok {
		t.Error("Position(5) set before any read or command")
	}
	if err := r.SetPosition(5, 100); err != nil {
		t.Fatalf("SetPosition(5) error = %v", err)
	}
	if pos, ok := r.Position(5); !ok || pos != 100 {
		t.Errorf("Position(5) = %d, %v, want 100, true", pos, ok)
	}
	if _, ok := r.Position(7); ok {
		t.Error("Position(7) reported for unregistered id")
	}
}

func TestRegistry_ReplaceKeepsSurvivingPositions(t *testing.T) {
	r := NewRegistry(8)
	if err := r.Replace([]bus.ActuatorID{1, 2}); err != nil {
		t.Fatal(err)
	}
	r.SetPosition(1, 11)
	r.SetPosition(2, 22)
	r.SetState(1, StateUnrecoverable)

	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", r.Len())
	}
	if _, ok := r.Position(1); ok {
		t.Error("Position(1) readable after Clear")
	}

	if err := r.Replace([]bus.ActuatorID{1, 3}); err != nil {
		t.Fatal(err)
	}
	if pos, ok := r.Position(1); !ok || pos != 11 {
		t.Errorf("Position(1) = %d, %v, want 11 carried over", pos, ok)
	}
	if _, ok := r.Position(2); ok {
		t.Error("Position(2) readable after it left the bus")
	}
	if _, ok := r.Position(3); ok {
		t.Error("Position(3) set for new id")
	}
	if got := r.State(1); got != StateDiscovered {
		t.Errorf("State(1) = %s, want discovered after re-admission", got)
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(8)
	if err := r.Replace([]bus.ActuatorID{4, 2}); err != nil {
		t.Fatal(err)
	}
	r.SetPosition(2, 512)
	r.SetState(2, StateCommandable)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() = %d joints, want 2", len(snap))
	}
	if snap[0].ID != 4 || snap[0].HasPosition {
		t.Errorf("snap[0] = %+v, want id 4 without position", snap[0])
	}
	if snap[1].ID != 2 || snap[1].Position != 512 || snap[1].State != StateCommandable {
		t.Errorf("snap[1] = %+v", snap[1])
	}
}
