package probe

import (
	"context"
	"time"

	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/session"
	"github.com/supporttools/host-rescue/pkg/types"
)

// ScriptRunner runs a scripted interactive session. Satisfied by
// *session.Driver; tests substitute a mock.
type ScriptRunner interface {
	RunScript(ctx context.Context, command string, args []string, script session.Script) (session.Outcome, error)
}

// Probe implements types.Prober by combining an ICMP liveness check with a
// login-detection session over the ssh client.
type Probe struct {
	pinger Pinger
	runner ScriptRunner

	pingCount   int
	pingTimeout time.Duration
	stepTimeout time.Duration
}

// New creates a probe from the run configuration.
func New(cfg types.RescueConfig, pinger Pinger, runner ScriptRunner) *Probe {
	return &Probe{
		pinger:      pinger,
		runner:      runner,
		pingCount:   cfg.PingCount,
		pingTimeout: cfg.PingTimeout,
		stepTimeout: cfg.StepTimeout,
	}
}

// IsLive reports whether host answered at least one of a bounded number of
// echo requests. A failure here is reported, never escalated on its own.
func (p *Probe) IsLive(ctx context.Context, host string) bool {
	results, err := p.pinger.Ping(ctx, host, p.pingCount, p.pingTimeout)
	if err != nil {
		logger.WithError(err).Debugf("liveness check error for %s", host)
		return false
	}
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// AnswersLogin reports whether host's remote login service is alive and
// evaluating credentials. A credential prompt or an explicit access-denied
// response both count; no authentication is attempted. Connection refused,
// a step timeout, or stream end before any pattern matches count as not
// answering.
func (p *Probe) AnswersLogin(ctx context.Context, host, user string) bool {
	script := session.LoginProbeScript(p.stepTimeout)
	outcome, err := p.runner.RunScript(ctx, "ssh", session.SSHArgs(user, host), script)
	if err != nil {
		logger.WithError(err).Debugf("login detection error for %s", host)
		return false
	}
	logger.Debugf("login detection for %s: %s (%s)", host, outcome.Class, outcome.Reason)
	return outcome.Success()
}

// WaitForRecovery polls both checks once per interval. It returns true the
// first time liveness and login detection succeed within the same poll; one
// check passing on one poll and the other on a later poll never combine. It
// returns false once window elapses without that joint success. No check
// results are cached across polls.
func (p *Probe) WaitForRecovery(ctx context.Context, host, user string, window, interval time.Duration) bool {
	deadline := time.Now().Add(window)

	for {
		if time.Now().Add(interval).After(deadline) {
			logger.Infof("Recovery window elapsed for %s", host)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}

		live := p.IsLive(ctx, host)
		if live && p.AnswersLogin(ctx, host, user) {
			logger.Infof("Host %s is live and answering login", host)
			return true
		}
		logger.Infof("Host %s not recovered yet (live=%v), polling again in %v", host, live, interval)
	}
}

var _ types.Prober = (*Probe)(nil)
