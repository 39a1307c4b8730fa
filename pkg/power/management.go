package power

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/types"
	"golang.org/x/crypto/ssh"
)

// CommandRunner executes a single command on a remote shell and returns its
// combined output. Tests substitute a mock.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ManagementCycler power-cycles the target through its out-of-band
// management controller with a single direct command. No outlet-label
// resolution is involved and a failure is never retried internally.
type ManagementCycler struct {
	runner  CommandRunner
	command string
}

// NewManagementCycler creates the management-controller cycler. cycleCommand
// is the one-shot command issued on the controller's shell (e.g.
// "power cycle").
func NewManagementCycler(endpoint types.ManagementEndpoint, cycleCommand string, connectTimeout time.Duration) *ManagementCycler {
	return &ManagementCycler{
		runner:  &sshCommandRunner{endpoint: endpoint, timeout: connectTimeout},
		command: cycleCommand,
	}
}

// SetRunner substitutes the command runner (useful for testing).
func (c *ManagementCycler) SetRunner(r CommandRunner) {
	c.runner = r
}

// Name implements types.Cycler.
func (c *ManagementCycler) Name() string {
	return "management"
}

// CyclePower implements types.Cycler by issuing the cycle command once.
func (c *ManagementCycler) CyclePower(ctx context.Context) error {
	output, err := c.runner.Run(ctx, c.command)
	if err != nil {
		return fmt.Errorf("%w: %v (output: %s)", types.ErrManagementCycleFailed, err, strings.TrimSpace(output))
	}
	logger.Infof("Management controller accepted power cycle command")
	return nil
}

// sshCommandRunner executes commands on the management controller over SSH.
type sshCommandRunner struct {
	endpoint types.ManagementEndpoint
	timeout  time.Duration
}

// Run dials the controller, runs the command in a one-off session, and
// returns its combined output.
func (r *sshCommandRunner) Run(ctx context.Context, command string) (string, error) {
	addr := r.endpoint.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	config := &ssh.ClientConfig{
		User: r.endpoint.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(r.endpoint.Secret),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = r.endpoint.Secret
				}
				return answers, nil
			}),
		},
		// Management controllers present self-signed host keys that change
		// with every firmware reset; strict checking would make the rescue
		// path unusable exactly when it is needed.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.timeout,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return "", fmt.Errorf("ssh connection to %s failed: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return string(res.output), fmt.Errorf("command %q failed: %w", command, res.err)
		}
		return string(res.output), nil
	}
}

var _ types.Cycler = (*ManagementCycler)(nil)
