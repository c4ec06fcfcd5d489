package robot

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gwillem/armctl/pkg/bus"
)

// ScanBufferSize bounds the candidate IDs kept from a single scan.
const ScanBufferSize = 100

var (
	ErrCapacityExceeded = errors.New("registry capacity exceeded")
	ErrInvalidID        = errors.New("actuator id out of range")
	ErrUnknownID        = errors.New("actuator not registered")
)

// JointState is the controller's view of one actuator.
type JointState int

const (
	StateUnknown JointState = iota
	StateDiscovered
	StateCommandable
	StateSuspect
	StateUnrecoverable
)

func (s JointState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateCommandable:
		return "commandable"
	case StateSuspect:
		return "suspect"
	case StateUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Joint is a snapshot of one registered actuator.
type Joint struct {
	ID          bus.ActuatorID
	Position    bus.Ticks
	HasPosition bool
	State       JointState
}

// Registry tracks the actuators found by the last discovery pass and the
// controller's belief about their positions. Positions can only be read or
// written for registered IDs.
//
// Writers are expected to be serialised by the caller; the lock only lets
// display code take snapshots while a command runs.
type Registry struct {
	mu        sync.RWMutex
	capacity  int
	ids       []bus.ActuatorID
	positions map[bus.ActuatorID]bus.Ticks
	states    map[bus.ActuatorID]JointState
}

// NewRegistry returns an empty registry holding at most capacity actuators.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity:  capacity,
		positions: make(map[bus.ActuatorID]bus.Ticks),
		states:    make(map[bus.ActuatorID]JointState),
	}
}

// Replace makes ids the registered set. Positions of IDs that stay
// registered are kept; everything else is forgotten. On error the registry
// is left unchanged.
func (r *Registry) Replace(ids []bus.ActuatorID) error {
	if len(ids) > r.capacity {
		return fmt.Errorf("%w: %d actuators, capacity %d", ErrCapacityExceeded, len(ids), r.capacity)
	}
	seen := make(map[bus.ActuatorID]bool, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidID, id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate actuator id %d", id)
		}
		seen[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = slices.Clone(ids)
	for id := range r.positions {
		if !seen[id] {
			delete(r.positions, id)
		}
	}
	r.states = make(map[bus.ActuatorID]JointState, len(ids))
	for _, id := range ids {
		r.states[id] = StateDiscovered
	}
	return nil
}

// Clear unregisters every actuator. Positions are retained so that a
// following Replace can carry them over.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = nil
	r.states = make(map[bus.ActuatorID]JointState)
}

// Len returns the number of registered actuators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Capacity returns the most actuators the registry accepts.
func (r *Registry) Capacity() int {
	return r.capacity
}

// IDs returns the registered IDs in scan order.
func (r *Registry) IDs() []bus.ActuatorID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ids)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id bus.ActuatorID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.ids, id)
}

// Position returns the tracked position of id. ok is false when id is not
// registered or nothing has been read or commanded for it yet.
func (r *Registry) Position(id bus.ActuatorID) (pos bus.Ticks, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !slices.Contains(r.ids, id) {
		return 0, false
	}
	pos, ok = r.positions[id]
	return pos, ok
}

// SetPosition records the tracked position of a registered id.
func (r *Registry) SetPosition(id bus.ActuatorID, pos bus.Ticks) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.ids, id) {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	r.positions[id] = pos
	return nil
}

// State returns the state of id, StateUnknown when it is not registered.
func (r *Registry) State(id bus.ActuatorID) JointState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[id]
}

// SetState records the state of a registered id.
func (r *Registry) SetState(id bus.ActuatorID, s JointState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.ids, id) {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	r.states[id] = s
	return nil
}

// Snapshot returns every registered actuator in scan order.
func (r *Registry) Snapshot() []Joint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joints := make([]Joint, 0, len(r.ids))
	for _, id := range r.ids {
		pos, ok := r.positions[id]
		joints = append(joints, Joint{
			ID:          id,
			Position:    pos,
			HasPosition: ok,
			State:       r.states[id],
		})
	}
	return joints
}
