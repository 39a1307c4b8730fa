// Host Rescue - escalating recovery for a single unresponsive host
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/huh"

	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/power"
	"github.com/supporttools/host-rescue/pkg/probe"
	"github.com/supporttools/host-rescue/pkg/rescue"
	"github.com/supporttools/host-rescue/pkg/session"
	"github.com/supporttools/host-rescue/pkg/types"
	"github.com/supporttools/host-rescue/pkg/util"
)

// Build-time variables set by goreleaser or make
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Command-line flags
var (
	configPath = flag.String("config", "/etc/host-rescue/config.yaml", "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Override log level (debug, info, warn, error, fatal)")
	logFormat  = flag.String("log-format", "", "Override log format (json, text)")
	version    = flag.Bool("version", false, "Show version information and exit")
)

// exitFunc allows tests to intercept process termination.
var exitFunc = os.Exit

func main() {
	flag.Parse()

	if *version {
		printVersion()
		exitFunc(0)
		return
	}

	config, err := util.LoadConfigOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		exitFunc(1)
		return
	}
	applyFlagOverrides(config)

	if err := logger.Initialize(config.Logging.Level, config.Logging.Format,
		config.Logging.Output, config.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		exitFunc(1)
		return
	}
	defer logger.Close()

	logger.Infof("Host Rescue %s starting", Version)

	// A missing external program is fatal before any remediation.
	if err := util.CheckDependencies(); err != nil {
		logger.Errorf("%v", err)
		exitFunc(1)
		return
	}

	input, err := collectInput()
	if err != nil {
		logger.Errorf("Failed to collect operator input: %v", err)
		exitFunc(1)
		return
	}
	input.applyDefaults()
	if err := input.validate(); err != nil {
		logger.Errorf("Invalid input: %v", err)
		exitFunc(1)
		return
	}

	disposition := run(context.Background(), *config, input)
	logger.Infof("Run complete: %s (exit %d)", disposition, disposition.ExitCode())
	exitFunc(disposition.ExitCode())
}

// run wires the components and drives the escalation to its disposition.
func run(ctx context.Context, config types.RescueConfig, input operatorInput) rescue.Disposition {
	target := types.Target{Host: input.TargetHost, SSHUser: input.SSHUser}
	mgmt := types.ManagementEndpoint{
		Addr:   input.MgmtAddr,
		User:   input.MgmtUser,
		Secret: input.MgmtSecret,
	}
	outlet := types.OutletEndpoint{
		Addr:           input.PDUAddr,
		CLIUser:        input.PDUUser,
		CLISecret:      input.PDUSecret,
		WriteCommunity: input.WriteCommunity,
		Outlet:         types.Outlet{Label: input.OutletLabel},
	}

	driver := session.NewDriver(config.StepTimeout)
	driver.SetLogger(logger.Get())

	prober := probe.New(config, probe.NewICMPPinger(), driver)

	management := power.NewManagementCycler(mgmt, config.Management.CycleCommand, config.Management.ConnectTimeout)

	// The structured path is attempted only when a write secret was supplied.
	var structured types.Cycler
	if outlet.HasWriteCommunity() {
		client := power.NewPDUClient(outlet, config.PDU.SNMPPort, config.PDU.SNMPTimeout)
		structured = power.NewSNMPCycler(outlet, client, config.OffWait)
	}

	terminal := power.NewTerminalCycler(outlet, driver, config)

	orchestrator := rescue.New(config, target, mgmt, prober, management, structured, terminal)
	return orchestrator.Run(ctx)
}

// operatorInput holds everything collected from the operator. Secrets exist
// only in process memory for the run's duration.
type operatorInput struct {
	TargetHost     string
	SSHUser        string
	OutletLabel    string
	MgmtAddr       string
	MgmtUser       string
	MgmtSecret     string
	PDUAddr        string
	PDUUser        string
	PDUSecret      string
	WriteCommunity string
}

// applyDefaults fills derivable fields: a blank outlet label defaults to the
// connect target.
func (in *operatorInput) applyDefaults() {
	if in.OutletLabel == "" {
		in.OutletLabel = in.TargetHost
	}
}

// validate rejects input that cannot drive a run.
func (in *operatorInput) validate() error {
	if in.TargetHost == "" {
		return fmt.Errorf("connect target is required")
	}
	if in.SSHUser == "" {
		return fmt.Errorf("SSH username is required")
	}
	if in.MgmtAddr == "" {
		return fmt.Errorf("management endpoint address is required")
	}
	if in.PDUAddr == "" {
		return fmt.Errorf("outlet unit address is required")
	}
	return nil
}

// collectInput prompts the operator sequentially for the run parameters.
// Secret fields are masked; a blank write community skips the structured
// outlet path.
func collectInput() (operatorInput, error) {
	var in operatorInput

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Connect target (host or IP)").
				Value(&in.TargetHost),
			huh.NewInput().
				Title("SSH username").
				Value(&in.SSHUser),
			huh.NewInput().
				Title("Outlet label (blank = connect target)").
				Value(&in.OutletLabel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Management endpoint address").
				Value(&in.MgmtAddr),
			huh.NewInput().
				Title("Management username").
				Value(&in.MgmtUser),
			huh.NewInput().
				Title("Management secret").
				EchoMode(huh.EchoModePassword).
				Value(&in.MgmtSecret),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Outlet unit address").
				Value(&in.PDUAddr),
			huh.NewInput().
				Title("Outlet unit CLI username").
				Value(&in.PDUUser),
			huh.NewInput().
				Title("Outlet unit CLI secret").
				EchoMode(huh.EchoModePassword).
				Value(&in.PDUSecret),
			huh.NewInput().
				Title("SNMP write community (blank = terminal path only)").
				EchoMode(huh.EchoModePassword).
				Value(&in.WriteCommunity),
		),
	)

	if err := form.Run(); err != nil {
		return operatorInput{}, err
	}
	return in, nil
}

// applyFlagOverrides applies command-line overrides to the configuration.
func applyFlagOverrides(config *types.RescueConfig) {
	if *logLevel != "" {
		config.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		config.Logging.Format = *logFormat
	}
}

// printVersion prints version information to stdout.
func printVersion() {
	fmt.Printf("host-rescue %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built: %s\n", BuildTime)
	fmt.Printf("  Go Version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
