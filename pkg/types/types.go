// Package types defines the core types and interfaces for Host Rescue.
package types

import (
	"context"
	"errors"
	"time"
)

// Target identifies the host being rescued. It is immutable for the run.
type Target struct {
	// Host is the address used for probing (hostname or IP).
	Host string

	// SSHUser is the username presented during login detection.
	// No authentication is ever attempted against the target.
	SSHUser string
}

// ManagementEndpoint describes the out-of-band management controller of the
// target (BMC, iLO, DRAC or similar) capable of power-cycling the host
// independently of its operating system.
type ManagementEndpoint struct {
	// Addr is the controller's address.
	Addr string

	// User is the controller login name.
	User string

	// Secret is the controller credential. It exists only in process memory
	// and is never logged or persisted.
	Secret string
}

// Outlet is an individually switchable socket on a power-distribution unit,
// addressed by a human label. The unit-internal numeric index is resolved at
// most once per run and cached; it is never persisted.
type Outlet struct {
	// Label is the human-readable outlet name as configured on the PDU.
	Label string
}

// OutletEndpoint describes the power-distribution unit that feeds the target.
type OutletEndpoint struct {
	// Addr is the PDU's address.
	Addr string

	// CLIUser and CLISecret are the credentials for the PDU's interactive
	// command-line interface (the terminal power-cycle path).
	CLIUser   string
	CLISecret string

	// WriteCommunity is the SNMP write community for the structured
	// power-cycle path. Empty means the structured path is skipped and the
	// terminal path is used directly.
	WriteCommunity string

	// Outlet is the socket feeding the target.
	Outlet Outlet
}

// HasWriteCommunity reports whether the structured (SNMP) power-cycle path
// is available for this endpoint.
func (e OutletEndpoint) HasWriteCommunity() bool {
	return e.WriteCommunity != ""
}

// Cycler is the capability to power-cycle the target through some power path.
// Implementations must sequence OFF strictly before ON with the configured
// off-wait between them and must not retry internally.
type Cycler interface {
	// CyclePower turns the target's power off and back on.
	// Returns an error if either half of the cycle fails.
	CyclePower(ctx context.Context) error

	// Name returns a short identifier for log messages (e.g. "management",
	// "outlet-snmp", "outlet-terminal").
	Name() string
}

// Prober decides whether the target is answering again.
type Prober interface {
	// IsLive reports whether the host responds to a bounded liveness check.
	IsLive(ctx context.Context, host string) bool

	// AnswersLogin reports whether the host's remote login service is alive
	// and evaluating credentials. A credential prompt or an explicit access
	// denied response both count as alive; no authentication is attempted.
	AnswersLogin(ctx context.Context, host, user string) bool

	// WaitForRecovery polls both checks once per interval and returns true
	// the first time both succeed within the same poll. It returns false once
	// window elapses without that joint success.
	WaitForRecovery(ctx context.Context, host, user string, window, interval time.Duration) bool
}

// Error taxonomy. Callers classify failures with errors.Is; no failure is
// retried beyond the single documented escalation path.
var (
	// ErrDependencyMissing indicates a required external program is absent.
	// Fatal before any remediation is attempted.
	ErrDependencyMissing = errors.New("required external dependency missing")

	// ErrProbeUnreachable indicates the target failed its reachability probe.
	// Recoverable: it triggers escalation, never a run failure by itself.
	ErrProbeUnreachable = errors.New("target unreachable")

	// ErrManagementUnreachable indicates the management endpoint itself did
	// not answer its liveness check. The management cycle is skipped entirely.
	ErrManagementUnreachable = errors.New("management endpoint unreachable")

	// ErrManagementCycleFailed indicates the management-controller power
	// cycle command failed. Escalates to the outlet fallback.
	ErrManagementCycleFailed = errors.New("management power cycle failed")

	// ErrOutletNotFound indicates the outlet label matched no entry in the
	// unit's outlet-name table. Fatal for the structured path only.
	ErrOutletNotFound = errors.New("outlet label not found")

	// ErrOutletCycleFailed indicates an outlet-level power cycle failed.
	ErrOutletCycleFailed = errors.New("outlet power cycle failed")

	// ErrRecoveryTimeout indicates a power cycle succeeded but the target
	// never became reachable within the recovery window.
	ErrRecoveryTimeout = errors.New("target did not recover within wait window")
)
