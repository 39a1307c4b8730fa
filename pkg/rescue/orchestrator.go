// Package rescue implements the escalation state machine that sequences
// probe, management-controller cycle, and outlet cycle until the target
// answers again or all options are exhausted. The machine is a strict DAG:
// no state is revisited once left, and once an outlet cycle has been
// attempted the management cycle is never retried in the same run.
package rescue

import (
	"context"
	"time"

	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/types"
)

// Stage identifies a state of the escalation machine.
type Stage string

const (
	StageStart            Stage = "START"
	StageLocalOK          Stage = "LOCAL_OK"
	StageMgmtProbe        Stage = "MGMT_PROBE"
	StageMgmtCycled       Stage = "MGMT_CYCLED"
	StageMgmtWait         Stage = "MGMT_WAIT"
	StageOutletFallback   Stage = "OUTLET_FALLBACK"
	StageOutletStructured Stage = "OUTLET_STRUCTURED"
	StageOutletTerminal   Stage = "OUTLET_TERMINAL"
	StageOutletWait       Stage = "OUTLET_WAIT"
	StageFailed           Stage = "FAILED"
)

// Disposition is the final result of a run. The CLI boundary translates it
// to a process exit code exactly once.
type Disposition int

const (
	// DispositionRecovered: the target answers again (or never stopped).
	DispositionRecovered Disposition = iota

	// DispositionOutletFailed: every attempted outlet path failed; no
	// recovery wait was performed.
	DispositionOutletFailed

	// DispositionRecoveryTimeout: an outlet cycle succeeded but the target
	// never answered within the wait window.
	DispositionRecoveryTimeout
)

// ExitCode maps the disposition to the documented process exit code, so
// callers can distinguish "no power path worked" from "power cycled but the
// host never answered".
func (d Disposition) ExitCode() int {
	switch d {
	case DispositionRecovered:
		return 0
	case DispositionOutletFailed:
		return 2
	case DispositionRecoveryTimeout:
		return 3
	default:
		return 1
	}
}

// String returns a human-readable disposition name.
func (d Disposition) String() string {
	switch d {
	case DispositionRecovered:
		return "recovered"
	case DispositionOutletFailed:
		return "outlet remediation failed"
	case DispositionRecoveryTimeout:
		return "recovery timeout"
	default:
		return "unknown"
	}
}

// Transition records one stage change with its timestamp and reason.
type Transition struct {
	Stage  Stage
	At     time.Time
	Reason string
}

// RecoveryAttempt is the per-run record of the escalation. It is owned
// exclusively by the orchestrator and discarded at process end; there is no
// cross-run state.
type RecoveryAttempt struct {
	Stage       Stage
	Transitions []Transition
}

// Orchestrator runs the escalation for a single target. Execution is
// strictly sequential: exactly one remediation action is ever in flight, and
// each stage fully completes before the next begins.
type Orchestrator struct {
	cfg    types.RescueConfig
	target types.Target
	mgmt   types.ManagementEndpoint

	prober           types.Prober
	management       types.Cycler
	outletStructured types.Cycler // nil when no structured write secret was supplied
	outletTerminal   types.Cycler

	attempt RecoveryAttempt
}

// New creates an orchestrator. outletStructured must be nil when the
// operator supplied no structured write secret; the terminal path is then
// used directly with no structured attempt logged.
func New(cfg types.RescueConfig, target types.Target, mgmt types.ManagementEndpoint,
	prober types.Prober, management, outletStructured, outletTerminal types.Cycler) *Orchestrator {
	return &Orchestrator{
		cfg:              cfg,
		target:           target,
		mgmt:             mgmt,
		prober:           prober,
		management:       management,
		outletStructured: outletStructured,
		outletTerminal:   outletTerminal,
	}
}

// Attempt returns the per-run escalation record.
func (o *Orchestrator) Attempt() RecoveryAttempt {
	return o.attempt
}

// Run drives the state machine to one of its terminal outcomes.
func (o *Orchestrator) Run(ctx context.Context) Disposition {
	o.transition(StageStart, "probing target "+o.target.Host)

	if o.prober.IsLive(ctx, o.target.Host) && o.prober.AnswersLogin(ctx, o.target.Host, o.target.SSHUser) {
		o.transition(StageLocalOK, "target is live and answering login, no remediation needed")
		return DispositionRecovered
	}

	o.transition(StageMgmtProbe, "target unresponsive, probing management endpoint "+o.mgmt.Addr)

	if !o.prober.IsLive(ctx, o.mgmt.Addr) {
		// Skipped entirely, not merely failed.
		o.transition(StageOutletFallback, types.ErrManagementUnreachable.Error()+", skipping management cycle")
		return o.outletFallback(ctx)
	}

	if err := o.management.CyclePower(ctx); err != nil {
		logger.WithError(err).Warnf("Management power cycle failed")
		o.transition(StageOutletFallback, "management cycle failed: "+err.Error())
		return o.outletFallback(ctx)
	}

	o.transition(StageMgmtCycled, "management controller cycled target power")
	o.transition(StageMgmtWait, "waiting for target to recover")

	if o.waitForRecovery(ctx) {
		o.transition(StageLocalOK, "target recovered after management cycle")
		return DispositionRecovered
	}

	o.transition(StageOutletFallback, "target did not recover after management cycle")
	return o.outletFallback(ctx)
}

// outletFallback attempts the outlet paths: structured first when a write
// secret was supplied, then the terminal path. Both failing ends the run
// with no recovery wait.
func (o *Orchestrator) outletFallback(ctx context.Context) Disposition {
	if o.outletStructured != nil {
		o.transition(StageOutletStructured, "attempting structured outlet cycle")
		err := o.outletStructured.CyclePower(ctx)
		if err == nil {
			return o.outletWait(ctx, o.outletStructured.Name())
		}
		logger.WithError(err).Warnf("Structured outlet cycle failed, falling back to terminal path")
	}

	o.transition(StageOutletTerminal, "attempting terminal outlet cycle")
	if err := o.outletTerminal.CyclePower(ctx); err != nil {
		logger.WithError(err).Errorf("Terminal outlet cycle failed")
		o.transition(StageFailed, "all outlet remediation attempts failed")
		return DispositionOutletFailed
	}

	return o.outletWait(ctx, o.outletTerminal.Name())
}

// outletWait polls for recovery after a successful outlet cycle.
func (o *Orchestrator) outletWait(ctx context.Context, via string) Disposition {
	o.transition(StageOutletWait, "outlet cycled via "+via+", waiting for target to recover")

	if o.waitForRecovery(ctx) {
		o.transition(StageLocalOK, "target recovered after outlet cycle")
		return DispositionRecovered
	}

	o.transition(StageFailed, types.ErrRecoveryTimeout.Error())
	return DispositionRecoveryTimeout
}

func (o *Orchestrator) waitForRecovery(ctx context.Context) bool {
	return o.prober.WaitForRecovery(ctx, o.target.Host, o.target.SSHUser,
		o.cfg.RecoveryWindow, o.cfg.PollInterval)
}

// transition records and reports a stage change.
func (o *Orchestrator) transition(stage Stage, reason string) {
	now := time.Now()
	o.attempt.Stage = stage
	o.attempt.Transitions = append(o.attempt.Transitions, Transition{
		Stage:  stage,
		At:     now,
		Reason: reason,
	})
	logger.WithField("stage", string(stage)).Infof("%s", reason)
}
