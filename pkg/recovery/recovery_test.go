package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/bus/bustest"
	"github.com/gwillem/armctl/pkg/logging"
)

type sleepLog []time.Duration

func (s *sleepLog) sleep(d time.Duration) { *s = append(*s, d) }

func openFake(t *testing.T, ids ...bus.ActuatorID) *bustest.Fake {
	t.Helper()
	f := bustest.NewFake(ids...)
	if err := f.Open(context.Background(), "fake", bus.DefaultBaudRate); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return f
}

func newRecoverer(f *bustest.Fake, sleeps *sleepLog) *Recoverer {
	return New(Config{
		Driver:       f,
		RebootSettle: time.Second,
		VerifySettle: 500 * time.Millisecond,
		VerifyOffset: 10,
		Sleep:        sleeps.sleep,
		Logger:       logging.Discard(),
	})
}

func TestResetActuator(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *bustest.Fake)
		wantErr error
		wantPos bool
	}{
		{
			name:    "recovers",
			setup:   func(f *bustest.Fake) { f.SetPosition(9, 2048) },
			wantPos: true,
		},
		{
			name:    "reboot fails",
			setup:   func(f *bustest.Fake) { f.Fail(bustest.OpReboot, 9, 1) },
			wantErr: ErrReboot,
		},
		{
			name:    "ping times out",
			setup:   func(f *bustest.Fake) { f.Fail(bustest.OpPing, 9, 1) },
			wantErr: ErrUnresponsive,
		},
		{
			name:    "joint mode refused",
			setup:   func(f *bustest.Fake) { f.Fail(bustest.OpJointMode, 9, 1) },
			wantErr: ErrModeEstablish,
		},
		{
			name:  "read fails after recovery",
			setup: func(f *bustest.Fake) { f.Fail(bustest.OpRead, 9, 1) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := openFake(t, 9)
			tt.setup(f)
			var sleeps sleepLog

			out := newRecoverer(f, &sleeps).ResetActuator(context.Background(), 9)

			if tt.wantErr == nil {
				if !out.Recovered() {
					t.Fatalf("ResetActuator() err = %v, want recovered", out.Err)
				}
			} else {
				if !errors.Is(out.Err, tt.wantErr) {
					t.Fatalf("ResetActuator() err = %v, want %v", out.Err, tt.wantErr)
				}
				if !errors.Is(out.Err, ErrRecoveryExhausted) {
					t.Errorf("failed tier should report ErrRecoveryExhausted, got %v", out.Err)
				}
			}
			if out.HasPosition != tt.wantPos {
				t.Errorf("HasPosition = %v, want %v", out.HasPosition, tt.wantPos)
			}
			if tt.wantPos && out.Position != 2048 {
				t.Errorf("Position = %d, want 2048", out.Position)
			}
		})
	}
}

func TestResetActuator_WaitsForBoot(t *testing.T) {
	f := openFake(t, 9)
	var sleeps sleepLog

	newRecoverer(f, &sleeps).ResetActuator(context.Background(), 9)

	if len(sleeps) != 1 || sleeps[0] != time.Second {
		t.Errorf("sleeps = %v, want [1s]", sleeps)
	}
	log := f.Log()
	var ops []bustest.Op
	for _, c := range log[1:] { // skip open
		ops = append(ops, c.Op)
	}
	want := []bustest.Op{bustest.OpReboot, bustest.OpPing, bustest.OpJointMode, bustest.OpRead}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestForceEnable_TierOneWins(t *testing.T) {
	f := openFake(t, 3)
	var sleeps sleepLog

	out := newRecoverer(f, &sleeps).ForceEnable(context.Background(), 3)

	if !out.Recovered() {
		t.Fatalf("ForceEnable() err = %v", out.Err)
	}
	if out.Strategy != "reset" {
		t.Errorf("Strategy = %q, want reset", out.Strategy)
	}
	if f.Calls(bustest.OpTorque) != 0 {
		t.Error("tier 2 ran although tier 1 recovered")
	}
}

func TestForceEnable_VerifiesMovement(t *testing.T) {
	f := openFake(t, 3)
	f.SetPosition(3, 1000)
	f.Fail(bustest.OpReboot, 3, 1)
	var sleeps sleepLog

	out := newRecoverer(f, &sleeps).ForceEnable(context.Background(), 3)

	if !out.Recovered() {
		t.Fatalf("ForceEnable() err = %v", out.Err)
	}
	if out.Strategy != "verify" {
		t.Errorf("Strategy = %q, want verify", out.Strategy)
	}
	goals := f.Goals(3)
	if len(goals) != 1 || goals[0] != 1010 {
		t.Errorf("goals = %v, want [1010]", goals)
	}
	if out.Position != 1010 {
		t.Errorf("Position = %d, want 1010", out.Position)
	}
	if len(sleeps) != 1 || sleeps[0] != 500*time.Millisecond {
		t.Errorf("sleeps = %v, want [500ms]", sleeps)
	}
}

func TestForceEnable_ConstantReadsFail(t *testing.T) {
	f := openFake(t, 3)
	f.SetPosition(3, 700)
	f.Stick(3)
	f.Fail(bustest.OpReboot, 3, 1)
	var sleeps sleepLog

	out := newRecoverer(f, &sleeps).ForceEnable(context.Background(), 3)

	if out.Recovered() {
		t.Fatal("ForceEnable() recovered a stuck actuator")
	}
	if !errors.Is(out.Err, ErrStuck) {
		t.Errorf("err = %v, want ErrStuck", out.Err)
	}
	if !errors.Is(out.Err, ErrRecoveryExhausted) {
		t.Errorf("err = %v, want ErrRecoveryExhausted", out.Err)
	}
	if !out.HasPosition || out.Position != 700 {
		t.Errorf("Position = %d (has %v), want 700", out.Position, out.HasPosition)
	}
}

func TestForceEnable_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *bustest.Fake)
		wantErr error
	}{
		{
			name: "unresponsive",
			setup: func(f *bustest.Fake) {
				f.Fail(bustest.OpPing, 3, -1)
			},
			wantErr: ErrUnresponsive,
		},
		{
			name: "torque refused",
			setup: func(f *bustest.Fake) {
				f.Fail(bustest.OpReboot, 3, 1)
				f.Fail(bustest.OpTorque, 3, 1)
			},
			wantErr: ErrTorque,
		},
		{
			name: "joint mode refused",
			setup: func(f *bustest.Fake) {
				f.Fail(bustest.OpJointMode, 3, -1)
			},
			wantErr: ErrModeEstablish,
		},
		{
			name: "test move rejected",
			setup: func(f *bustest.Fake) {
				f.Fail(bustest.OpReboot, 3, 1)
				f.Fail(bustest.OpGoal, 3, 1)
			},
			wantErr: ErrCommand,
		},
		{
			name: "position unreadable",
			setup: func(f *bustest.Fake) {
				f.Fail(bustest.OpReboot, 3, 1)
				f.Fail(bustest.OpRead, 3, -1)
			},
			wantErr: ErrCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := openFake(t, 3)
			tt.setup(f)
			var sleeps sleepLog

			out := newRecoverer(f, &sleeps).ForceEnable(context.Background(), 3)

			if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("ForceEnable() err = %v, want %v", out.Err, tt.wantErr)
			}
		})
	}
}

type scripted struct {
	name string
	out  Outcome
	runs *int
}

func (s scripted) Name() string { return s.name }

func (s scripted) Attempt(context.Context, bus.Driver, bus.ActuatorID) Outcome {
	*s.runs++
	return s.out
}

func TestChain_Run(t *testing.T) {
	var a, b, c int
	chain := Chain{
		scripted{name: "a", out: Outcome{Err: ErrStuck, Position: 42, HasPosition: true}, runs: &a},
		scripted{name: "b", out: Outcome{}, runs: &b},
		scripted{name: "c", out: Outcome{}, runs: &c},
	}

	out := chain.Run(context.Background(), nil, 1, logging.Discard())
	if !out.Recovered() || out.Strategy != "b" {
		t.Errorf("Run() = %+v, want recovered by b", out)
	}
	if a != 1 || b != 1 || c != 0 {
		t.Errorf("runs a=%d b=%d c=%d, want 1 1 0", a, b, c)
	}
}

func TestChain_RunExhausted(t *testing.T) {
	var a, b int
	chain := Chain{
		scripted{name: "a", out: Outcome{Err: ErrStuck, Position: 42, HasPosition: true}, runs: &a},
		scripted{name: "b", out: Outcome{Err: ErrUnresponsive}, runs: &b},
	}

	out := chain.Run(context.Background(), nil, 1, logging.Discard())
	if out.Recovered() {
		t.Fatal("Run() recovered")
	}
	if !errors.Is(out.Err, ErrRecoveryExhausted) || !errors.Is(out.Err, ErrUnresponsive) {
		t.Errorf("err = %v, want exhausted + unresponsive", out.Err)
	}
	if !out.HasPosition || out.Position != 42 {
		t.Errorf("position = %d (has %v), want 42 carried from a", out.Position, out.HasPosition)
	}

	empty := Chain{}.Run(context.Background(), nil, 1, logging.Discard())
	if !errors.Is(empty.Err, ErrRecoveryExhausted) {
		t.Errorf("empty chain err = %v, want ErrRecoveryExhausted", empty.Err)
	}
}
