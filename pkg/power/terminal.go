package power

import (
	"context"
	"fmt"
	"time"

	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/session"
	"github.com/supporttools/host-rescue/pkg/types"
)

// ScriptRunner runs a scripted interactive session. Satisfied by
// *session.Driver.
type ScriptRunner interface {
	RunScript(ctx context.Context, command string, args []string, script session.Script) (session.Outcome, error)
}

// TerminalCycler power-cycles the target's outlet by driving the PDU's own
// command-line interface: one scripted session for OFF, the off-wait, one
// for ON. The unit performs its own label lookup, so no index resolution is
// involved.
type TerminalCycler struct {
	endpoint types.OutletEndpoint
	runner   ScriptRunner
	pdu      types.PDUConfig

	offWait     time.Duration
	stepTimeout time.Duration
}

// NewTerminalCycler creates the terminal-path cycler.
func NewTerminalCycler(endpoint types.OutletEndpoint, runner ScriptRunner, cfg types.RescueConfig) *TerminalCycler {
	return &TerminalCycler{
		endpoint:    endpoint,
		runner:      runner,
		pdu:         cfg.PDU,
		offWait:     cfg.OffWait,
		stepTimeout: cfg.StepTimeout,
	}
}

// Name implements types.Cycler.
func (c *TerminalCycler) Name() string {
	return "outlet-terminal"
}

// CyclePower implements types.Cycler. As with the structured path, a failure
// after OFF performs no automatic ON retry.
func (c *TerminalCycler) CyclePower(ctx context.Context) error {
	label := c.endpoint.Outlet.Label

	if err := c.runCommand(ctx, c.pdu.OffCommand, label); err != nil {
		return err
	}
	logger.Infof("PDU accepted %s for %q, waiting %v before switching on", c.pdu.OffCommand, label, c.offWait)

	if err := sleepCtx(ctx, c.offWait); err != nil {
		logger.Errorf("Interrupted during off-wait; outlet %q on %s may remain powered off", label, c.endpoint.Addr)
		return fmt.Errorf("%w: interrupted during off-wait: %v", types.ErrOutletCycleFailed, err)
	}

	if err := c.runCommand(ctx, c.pdu.OnCommand, label); err != nil {
		logger.Errorf("ON command failed after OFF; outlet %q on %s may remain powered off", label, c.endpoint.Addr)
		return err
	}
	logger.Infof("PDU accepted %s for %q", c.pdu.OnCommand, label)

	return nil
}

// runCommand drives one outlet command through the unit's CLI.
func (c *TerminalCycler) runCommand(ctx context.Context, verb, label string) error {
	command := fmt.Sprintf("%s %q", verb, label)

	script, err := session.OutletCommandScript(
		c.endpoint.CLISecret, c.pdu.CLIPrompt, command, c.pdu.SuccessMarker, c.stepTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrOutletCycleFailed, err)
	}

	args := session.SSHArgs(c.endpoint.CLIUser, c.endpoint.Addr)
	outcome, err := c.runner.RunScript(ctx, "ssh", args, script)
	if err != nil {
		return fmt.Errorf("%w: session for %q failed: %v", types.ErrOutletCycleFailed, command, err)
	}
	if !outcome.Success() {
		return fmt.Errorf("%w: %q did not complete: %s", types.ErrOutletCycleFailed, command, outcome.Reason)
	}
	return nil
}

var _ types.Cycler = (*TerminalCycler)(nil)
