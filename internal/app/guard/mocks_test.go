package guard

import (
	"context"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

type enforcerCall struct {
	op   string
	rate float64
}

type fakeEnforcer struct {
	calls []enforcerCall

	installErr  error
	removeErr   error
	shutdownErr error
	// shutdownFailures caps how many shutdown attempts fail before one
	// succeeds; -1 means every attempt fails.
	shutdownFailures int
}

func (f *fakeEnforcer) InstallRateCap(ctx context.Context, bps float64) error {
	f.calls = append(f.calls, enforcerCall{op: "install", rate: bps})
	return f.installErr
}

func (f *fakeEnforcer) RemoveRateCap(ctx context.Context) error {
	f.calls = append(f.calls, enforcerCall{op: "remove"})
	return f.removeErr
}

func (f *fakeEnforcer) InstallConnLimit(ctx context.Context, maxConns int) error {
	f.calls = append(f.calls, enforcerCall{op: "connlimit", rate: float64(maxConns)})
	return nil
}

func (f *fakeEnforcer) ShutdownHost(ctx context.Context, reason string) error {
	f.calls = append(f.calls, enforcerCall{op: "shutdown"})
	if f.shutdownFailures != 0 {
		if f.shutdownFailures > 0 {
			f.shutdownFailures--
		}
		return f.shutdownErr
	}
	return nil
}

func (f *fakeEnforcer) ops() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

type transition struct {
	oldMode, newMode domain.Mode
	reason           string
}

type fakeObs struct {
	warns       []string
	errors      []string
	criticals   []string
	counters    map[string]float64
	transitions []transition
}

func newFakeObs() *fakeObs {
	return &fakeObs{counters: make(map[string]float64)}
}

func (f *fakeObs) LogInfo(msg string, fields ...ports.Field) {}

func (f *fakeObs) LogWarn(msg string, fields ...ports.Field) {
	f.warns = append(f.warns, msg)
}

func (f *fakeObs) LogError(msg string, err error, fields ...ports.Field) {
	f.errors = append(f.errors, msg)
}

func (f *fakeObs) LogCritical(msg string, err error, fields ...ports.Field) {
	f.criticals = append(f.criticals, msg)
}

func (f *fakeObs) IncCounter(name string, v float64) { f.counters[name] += v }

func (f *fakeObs) SetGauge(name string, v float64) {}

func (f *fakeObs) RecordTransition(oldMode, newMode domain.Mode, reason string, s domain.Sample) {
	f.transitions = append(f.transitions, transition{oldMode: oldMode, newMode: newMode, reason: reason})
}
