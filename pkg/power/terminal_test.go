package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/supporttools/host-rescue/pkg/session"
	"github.com/supporttools/host-rescue/pkg/types"
)

// recordedRun captures one scripted session invocation.
type recordedRun struct {
	command string
	args    []string
	script  session.Script
}

// mockScriptRunner records invocations and returns scripted outcomes.
type mockScriptRunner struct {
	mu       sync.Mutex
	runs     []recordedRun
	outcomes []session.Outcome
	err      error
}

func (m *mockScriptRunner) RunScript(ctx context.Context, command string, args []string, script session.Script) (session.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, recordedRun{command: command, args: args, script: script})
	if m.err != nil {
		return session.Outcome{Class: session.ClassFailure}, m.err
	}
	if len(m.outcomes) == 0 {
		return session.Outcome{Class: session.ClassSuccess}, nil
	}
	o := m.outcomes[0]
	m.outcomes = m.outcomes[1:]
	return o, nil
}

func terminalTestConfig(t *testing.T) types.RescueConfig {
	t.Helper()
	cfg := types.RescueConfig{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("failed to build test config: %v", err)
	}
	cfg.OffWait = 10 * time.Millisecond
	return cfg
}

func terminalEndpoint() types.OutletEndpoint {
	return types.OutletEndpoint{
		Addr:      "pdu1",
		CLIUser:   "apc",
		CLISecret: "apc",
		Outlet:    types.Outlet{Label: "web01"},
	}
}

// sentCommand extracts the command text the script sends at the unit's
// command prompt.
func sentCommand(t *testing.T, script session.Script) string {
	t.Helper()
	if len(script.Steps) < 2 || len(script.Steps[1].Rules) == 0 {
		t.Fatal("script has no command step")
	}
	return script.Steps[1].Rules[0].Text
}

func TestTerminalCyclePowerOffThenOn(t *testing.T) {
	runner := &mockScriptRunner{}
	c := NewTerminalCycler(terminalEndpoint(), runner, terminalTestConfig(t))

	if err := c.CyclePower(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.runs) != 2 {
		t.Fatalf("expected 2 sessions (OFF then ON), got %d", len(runner.runs))
	}
	if got := sentCommand(t, runner.runs[0].script); got != `outletOff "web01"` {
		t.Errorf("first session command = %q", got)
	}
	if got := sentCommand(t, runner.runs[1].script); got != `outletOn "web01"` {
		t.Errorf("second session command = %q", got)
	}
	for _, run := range runner.runs {
		if run.command != "ssh" {
			t.Errorf("expected sessions over ssh, got %q", run.command)
		}
		if last := run.args[len(run.args)-1]; last != "apc@pdu1" {
			t.Errorf("expected session against apc@pdu1, got %q", last)
		}
	}
}

func TestTerminalCyclePowerOffFails(t *testing.T) {
	runner := &mockScriptRunner{outcomes: []session.Outcome{
		{Class: session.ClassFailure, Reason: "timeout waiting for step 1"},
	}}
	c := NewTerminalCycler(terminalEndpoint(), runner, terminalTestConfig(t))

	err := c.CyclePower(context.Background())
	if !errors.Is(err, types.ErrOutletCycleFailed) {
		t.Fatalf("expected ErrOutletCycleFailed, got %v", err)
	}
	if len(runner.runs) != 1 {
		t.Errorf("expected no ON session after a failed OFF, got %d sessions", len(runner.runs))
	}
}

func TestTerminalCyclePowerOnFailsNoRetry(t *testing.T) {
	runner := &mockScriptRunner{outcomes: []session.Outcome{
		{Class: session.ClassSuccess},
		{Class: session.ClassFailure, Reason: "stream ended"},
	}}
	c := NewTerminalCycler(terminalEndpoint(), runner, terminalTestConfig(t))

	err := c.CyclePower(context.Background())
	if !errors.Is(err, types.ErrOutletCycleFailed) {
		t.Fatalf("expected ErrOutletCycleFailed, got %v", err)
	}
	if len(runner.runs) != 2 {
		t.Errorf("expected exactly 2 sessions (no retry), got %d", len(runner.runs))
	}
}

func TestTerminalCyclePowerInvalidPrompt(t *testing.T) {
	cfg := terminalTestConfig(t)
	cfg.PDU.CLIPrompt = `([`
	c := NewTerminalCycler(terminalEndpoint(), &mockScriptRunner{}, cfg)

	if err := c.CyclePower(context.Background()); !errors.Is(err, types.ErrOutletCycleFailed) {
		t.Fatalf("expected ErrOutletCycleFailed for invalid prompt, got %v", err)
	}
}

func TestTerminalCyclerName(t *testing.T) {
	c := NewTerminalCycler(terminalEndpoint(), &mockScriptRunner{}, terminalTestConfig(t))
	if got := c.Name(); got != "outlet-terminal" {
		t.Errorf("Name() = %q", got)
	}
}
