package power

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/supporttools/host-rescue/pkg/types"
)

// mockCommandRunner records the commands it was asked to run.
type mockCommandRunner struct {
	commands []string
	output   string
	err      error
}

func (m *mockCommandRunner) Run(ctx context.Context, command string) (string, error) {
	m.commands = append(m.commands, command)
	return m.output, m.err
}

func newTestManagementCycler(runner CommandRunner) *ManagementCycler {
	endpoint := types.ManagementEndpoint{Addr: "bmc1", User: "ADMIN", Secret: "ADMIN"}
	c := NewManagementCycler(endpoint, "power cycle", 5*time.Second)
	c.SetRunner(runner)
	return c
}

func TestManagementCyclePower(t *testing.T) {
	runner := &mockCommandRunner{output: "Chassis Power Control: Cycle"}
	c := newTestManagementCycler(runner)

	if err := c.CyclePower(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "power cycle" {
		t.Errorf("expected a single 'power cycle' command, got %v", runner.commands)
	}
}

func TestManagementCyclePowerFailureNotRetried(t *testing.T) {
	runner := &mockCommandRunner{err: fmt.Errorf("session rejected")}
	c := newTestManagementCycler(runner)

	err := c.CyclePower(context.Background())
	if !errors.Is(err, types.ErrManagementCycleFailed) {
		t.Fatalf("expected ErrManagementCycleFailed, got %v", err)
	}
	if len(runner.commands) != 1 {
		t.Errorf("a failed cycle must not be retried internally, got %d attempts", len(runner.commands))
	}
}

func TestManagementCyclerName(t *testing.T) {
	if got := newTestManagementCycler(&mockCommandRunner{}).Name(); got != "management" {
		t.Errorf("Name() = %q", got)
	}
}
