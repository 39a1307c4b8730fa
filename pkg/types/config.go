package types

import (
	"fmt"
	"time"
)

// Default tunables. These match the documented fixed values; a config file can
// override them for unusual gear (slow PDUs, distant management networks).
const (
	// DefaultPingCount is the number of probes per liveness check.
	DefaultPingCount = 2

	// DefaultPingTimeout is the per-probe timeout.
	DefaultPingTimeout = "2s"

	// DefaultOffWait is the mandatory wait between an outlet's OFF and ON.
	DefaultOffWait = "60s"

	// DefaultRecoveryWindow is the total recovery-wait window after a cycle.
	DefaultRecoveryWindow = "600s"

	// DefaultPollInterval is the interval between recovery polls.
	DefaultPollInterval = "20s"

	// DefaultStepTimeout is the per-step timeout for interactive sessions.
	DefaultStepTimeout = "30s"

	// DefaultConnectTimeout bounds the SSH dial to the management controller.
	DefaultConnectTimeout = "10s"

	// DefaultSNMPTimeout bounds each SNMP request to the PDU.
	DefaultSNMPTimeout = "5s"
)

// RescueConfig holds all tunables for a rescue run. It is loaded once at
// startup, validated, and from then on passed by value; nothing mutates it
// during the run. Durations appear in files as strings ("60s", "2m") and are
// parsed into the unexported-from-YAML fields by ApplyDefaults.
type RescueConfig struct {
	// Probe settings.
	PingCount         int    `yaml:"pingCount,omitempty" json:"pingCount,omitempty"`
	PingTimeoutString string `yaml:"pingTimeout,omitempty" json:"pingTimeout,omitempty"`

	// Recovery-wait settings, shared by the management and outlet stages.
	RecoveryWindowString string `yaml:"recoveryWindow,omitempty" json:"recoveryWindow,omitempty"`
	PollIntervalString   string `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`

	// OffWaitString is how long the outlet stays off mid-cycle.
	OffWaitString string `yaml:"offWait,omitempty" json:"offWait,omitempty"`

	// StepTimeoutString bounds each step of a scripted interactive session.
	StepTimeoutString string `yaml:"stepTimeout,omitempty" json:"stepTimeout,omitempty"`

	// Parsed duration fields (not in JSON/YAML).
	PingTimeout    time.Duration `yaml:"-" json:"-"`
	RecoveryWindow time.Duration `yaml:"-" json:"-"`
	PollInterval   time.Duration `yaml:"-" json:"-"`
	OffWait        time.Duration `yaml:"-" json:"-"`
	StepTimeout    time.Duration `yaml:"-" json:"-"`

	// Management controller settings.
	Management ManagementConfig `yaml:"management,omitempty" json:"management,omitempty"`

	// PDU settings.
	PDU PDUConfig `yaml:"pdu,omitempty" json:"pdu,omitempty"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// ManagementConfig tunes the management-controller power-cycle path.
type ManagementConfig struct {
	// CycleCommand is the one-shot command issued on the controller's shell.
	CycleCommand string `yaml:"cycleCommand,omitempty" json:"cycleCommand,omitempty"`

	// ConnectTimeoutString bounds the SSH dial to the controller.
	ConnectTimeoutString string `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// Parsed duration field.
	ConnectTimeout time.Duration `yaml:"-" json:"-"`
}

// PDUConfig tunes both outlet power-cycle paths.
type PDUConfig struct {
	// SNMPPort is the UDP port for the structured path.
	SNMPPort uint16 `yaml:"snmpPort,omitempty" json:"snmpPort,omitempty"`

	// SNMPTimeoutString bounds each SNMP request.
	SNMPTimeoutString string `yaml:"snmpTimeout,omitempty" json:"snmpTimeout,omitempty"`

	// Parsed duration field.
	SNMPTimeout time.Duration `yaml:"-" json:"-"`

	// CLIPrompt is a pattern matching the unit's command prompt.
	CLIPrompt string `yaml:"cliPrompt,omitempty" json:"cliPrompt,omitempty"`

	// OffCommand and OnCommand are the CLI verbs; the quoted outlet label is
	// appended (the unit performs its own label lookup).
	OffCommand string `yaml:"offCommand,omitempty" json:"offCommand,omitempty"`
	OnCommand  string `yaml:"onCommand,omitempty" json:"onCommand,omitempty"`

	// SuccessMarker is text the unit echoes after a successful command.
	// The reappearance of CLIPrompt also counts as success.
	SuccessMarker string `yaml:"successMarker,omitempty" json:"successMarker,omitempty"`
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// ApplyDefaults fills zero-valued fields with their defaults and parses all
// duration strings. It returns an error when a duration string does not parse.
func (c *RescueConfig) ApplyDefaults() error {
	if c.PingCount == 0 {
		c.PingCount = DefaultPingCount
	}
	if c.PingTimeoutString == "" {
		c.PingTimeoutString = DefaultPingTimeout
	}
	if c.RecoveryWindowString == "" {
		c.RecoveryWindowString = DefaultRecoveryWindow
	}
	if c.PollIntervalString == "" {
		c.PollIntervalString = DefaultPollInterval
	}
	if c.OffWaitString == "" {
		c.OffWaitString = DefaultOffWait
	}
	if c.StepTimeoutString == "" {
		c.StepTimeoutString = DefaultStepTimeout
	}

	// Parse durations
	var err error
	c.PingTimeout, err = time.ParseDuration(c.PingTimeoutString)
	if err != nil {
		return fmt.Errorf("invalid pingTimeout %q: %w", c.PingTimeoutString, err)
	}
	c.RecoveryWindow, err = time.ParseDuration(c.RecoveryWindowString)
	if err != nil {
		return fmt.Errorf("invalid recoveryWindow %q: %w", c.RecoveryWindowString, err)
	}
	c.PollInterval, err = time.ParseDuration(c.PollIntervalString)
	if err != nil {
		return fmt.Errorf("invalid pollInterval %q: %w", c.PollIntervalString, err)
	}
	c.OffWait, err = time.ParseDuration(c.OffWaitString)
	if err != nil {
		return fmt.Errorf("invalid offWait %q: %w", c.OffWaitString, err)
	}
	c.StepTimeout, err = time.ParseDuration(c.StepTimeoutString)
	if err != nil {
		return fmt.Errorf("invalid stepTimeout %q: %w", c.StepTimeoutString, err)
	}

	if err := c.Management.ApplyDefaults(); err != nil {
		return err
	}
	if err := c.PDU.ApplyDefaults(); err != nil {
		return err
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	return nil
}

// ApplyDefaults applies default values to ManagementConfig.
func (m *ManagementConfig) ApplyDefaults() error {
	if m.CycleCommand == "" {
		m.CycleCommand = "power cycle"
	}
	if m.ConnectTimeoutString == "" {
		m.ConnectTimeoutString = DefaultConnectTimeout
	}

	var err error
	m.ConnectTimeout, err = time.ParseDuration(m.ConnectTimeoutString)
	if err != nil {
		return fmt.Errorf("invalid management.connectTimeout %q: %w", m.ConnectTimeoutString, err)
	}
	return nil
}

// ApplyDefaults applies default values to PDUConfig.
func (p *PDUConfig) ApplyDefaults() error {
	if p.SNMPPort == 0 {
		p.SNMPPort = 161
	}
	if p.SNMPTimeoutString == "" {
		p.SNMPTimeoutString = DefaultSNMPTimeout
	}
	if p.CLIPrompt == "" {
		p.CLIPrompt = `(?m)^\s*apc>`
	}
	if p.OffCommand == "" {
		p.OffCommand = "outletOff"
	}
	if p.OnCommand == "" {
		p.OnCommand = "outletOn"
	}
	if p.SuccessMarker == "" {
		p.SuccessMarker = "E000"
	}

	var err error
	p.SNMPTimeout, err = time.ParseDuration(p.SNMPTimeoutString)
	if err != nil {
		return fmt.Errorf("invalid pdu.snmpTimeout %q: %w", p.SNMPTimeoutString, err)
	}
	return nil
}

// Validate checks the configuration for values that would make a run
// misbehave. It assumes ApplyDefaults has run.
func (c *RescueConfig) Validate() error {
	if c.PingCount <= 0 {
		return fmt.Errorf("pingCount must be greater than 0, got %d", c.PingCount)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("pingTimeout must be greater than 0, got %v", c.PingTimeout)
	}
	if c.RecoveryWindow <= 0 {
		return fmt.Errorf("recoveryWindow must be greater than 0, got %v", c.RecoveryWindow)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be greater than 0, got %v", c.PollInterval)
	}
	if c.PollInterval > c.RecoveryWindow {
		return fmt.Errorf("pollInterval %v exceeds recoveryWindow %v", c.PollInterval, c.RecoveryWindow)
	}
	if c.OffWait <= 0 {
		return fmt.Errorf("offWait must be greater than 0, got %v", c.OffWait)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("stepTimeout must be greater than 0, got %v", c.StepTimeout)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q: must be json or text", c.Logging.Format)
	}
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File == "" {
			return fmt.Errorf("logging.file must be set when logging.output is 'file'")
		}
	default:
		return fmt.Errorf("invalid log output %q: must be stdout, stderr, or file", c.Logging.Output)
	}
	return nil
}
