package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Process is a running subordinate interactive process. It is a scoped
// resource: the driver terminates it on every exit path so no orphaned
// sessions remain.
type Process interface {
	// Reader returns the combined output stream of the process.
	Reader() io.Reader

	// Send writes text followed by a line terminator to the process's input.
	Send(text string) error

	// Kill forcibly terminates the process. Safe to call more than once.
	Kill() error
}

// Spawner starts subordinate processes. The default implementation uses
// os/exec; tests substitute a fake.
type Spawner interface {
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
}

// Logger provides optional logging for the driver. If not set, logging calls
// are silently ignored.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// DefaultStepTimeout bounds a step when neither the step nor the driver
// specifies one.
const DefaultStepTimeout = 30 * time.Second

// Driver runs scripts against subordinate interactive processes.
type Driver struct {
	spawner     Spawner
	logger      Logger
	stepTimeout time.Duration

	// epilogueWait bounds the best-effort wait for stream end after the
	// epilogue has been sent.
	epilogueWait time.Duration
}

// NewDriver creates a driver that spawns real processes via os/exec.
// stepTimeout is the default per-step timeout; zero means DefaultStepTimeout.
func NewDriver(stepTimeout time.Duration) *Driver {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Driver{
		spawner:      &execSpawner{},
		stepTimeout:  stepTimeout,
		epilogueWait: 2 * time.Second,
	}
}

// SetSpawner substitutes the process spawner (useful for testing).
func (d *Driver) SetSpawner(s Spawner) {
	d.spawner = s
}

// SetLogger sets an optional logger for the driver.
func (d *Driver) SetLogger(l Logger) {
	d.logger = l
}

// RunScript spawns the given interactive command and drives the script
// against it. For the current step, output is tested against that step's
// rules in declared order; the first rule whose pattern matches fires. The
// session ends with failure if a step's timeout elapses or the output stream
// ends before a terminal rule fires.
//
// The returned error reports only driver-level problems (spawn failure,
// context cancellation); scripted failures are reported in the Outcome with
// a nil error.
func (d *Driver) RunScript(ctx context.Context, command string, args []string, script Script) (Outcome, error) {
	if len(script.Steps) == 0 {
		return Outcome{Class: ClassFailure, Reason: "empty script"}, fmt.Errorf("script has no steps")
	}

	proc, err := d.spawner.Spawn(ctx, command, args...)
	if err != nil {
		return Outcome{Class: ClassFailure, Reason: "spawn failed"}, fmt.Errorf("failed to spawn %s: %w", command, err)
	}
	// The subordinate is terminated on every exit path.
	defer func() {
		if err := proc.Kill(); err != nil {
			d.warnf("failed to terminate subordinate %s: %v", command, err)
		}
	}()

	output := make(chan []byte)
	go pumpOutput(proc.Reader(), output)

	var window bytes.Buffer
	step := 0
	timer := time.NewTimer(d.timeoutFor(script.Steps[step]))
	defer timer.Stop()

	for {
		// Scan buffered output before waiting for more: a single read may
		// satisfy several rules in sequence.
		for {
			rule := matchStep(script.Steps[step], &window)
			if rule == nil {
				break
			}
			d.debugf("step %d matched rule %q", step, rule.Name)

			switch rule.Action {
			case ActionSend, ActionSendAdvance:
				if err := proc.Send(rule.Text); err != nil {
					return Outcome{Class: ClassFailure, MatchedRule: rule.Name,
						Reason: "send failed"}, fmt.Errorf("failed to send response for rule %q: %w", rule.Name, err)
				}
				d.debugf("sent %s", redact(rule))
				if rule.Action == ActionSendAdvance {
					step++
					if step >= len(script.Steps) {
						return Outcome{Class: ClassFailure, MatchedRule: rule.Name,
							Reason: "script exhausted without terminal rule"}, nil
					}
				}
				resetTimer(timer, d.timeoutFor(script.Steps[step]))

			case ActionTerminate:
				if rule.Class == ClassSuccess && script.Epilogue != "" {
					d.sendEpilogue(proc, script.Epilogue, output)
				}
				return Outcome{
					Class:       rule.Class,
					MatchedRule: rule.Name,
					Reason:      fmt.Sprintf("rule %q fired", rule.Name),
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return Outcome{Class: ClassFailure, Reason: "context cancelled"}, ctx.Err()

		case <-timer.C:
			return Outcome{Class: ClassFailure,
				Reason: fmt.Sprintf("timeout waiting for step %d", step)}, nil

		case chunk, ok := <-output:
			if !ok {
				return Outcome{Class: ClassFailure,
					Reason: fmt.Sprintf("output stream ended during step %d", step)}, nil
			}
			window.Write(chunk)
		}
	}
}

// timeoutFor returns the effective timeout for a step.
func (d *Driver) timeoutFor(s Step) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return d.stepTimeout
}

// sendEpilogue sends the epilogue and waits briefly for the stream to end.
// Best-effort: failures here never affect the classification.
func (d *Driver) sendEpilogue(proc Process, epilogue string, output <-chan []byte) {
	if err := proc.Send(epilogue); err != nil {
		d.debugf("epilogue send failed: %v", err)
		return
	}
	deadline := time.After(d.epilogueWait)
	for {
		select {
		case _, ok := <-output:
			if !ok {
				return
			}
		case <-deadline:
			return
		}
	}
}

func (d *Driver) debugf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debugf("[session] "+format, args...)
	}
}

func (d *Driver) warnf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Warnf("[session] "+format, args...)
	}
}

// matchStep tests the step's rules in declared order against the buffered
// output. On a match it consumes the buffer through the end of the match, so
// the same output cannot fire a rule twice, and returns the rule. Returns nil
// when no rule matches.
func matchStep(s Step, window *bytes.Buffer) *Rule {
	for i := range s.Rules {
		rule := &s.Rules[i]
		loc := rule.Pattern.FindIndex(window.Bytes())
		if loc == nil {
			continue
		}
		window.Next(loc[1])
		return rule
	}
	return nil
}

// redact formats a sent response for logging without exposing secrets.
func redact(rule *Rule) string {
	if rule.Secret {
		return "[redacted]"
	}
	return fmt.Sprintf("%q", rule.Text)
}

// resetTimer safely restarts a timer with a new duration.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// pumpOutput copies the process output into the channel in chunks and closes
// the channel on stream end.
func pumpOutput(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// execSpawner spawns real subordinate processes via os/exec.
type execSpawner struct{}

// Spawn starts the command with its stdout and stderr merged into a single
// stream and its stdin available for responses.
func (s *execSpawner) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &execProcess{cmd: cmd, stdin: stdin, reader: pr}
	go func() {
		// The pipe writer is closed when the process exits so readers see
		// stream end.
		_ = cmd.Wait()
		_ = pw.Close()
	}()

	return p, nil
}

// execProcess wraps a running exec.Cmd as a Process.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader io.Reader
}

func (p *execProcess) Reader() io.Reader {
	return p.reader
}

func (p *execProcess) Send(text string) error {
	_, err := io.WriteString(p.stdin, text+"\n")
	return err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if p.cmd.ProcessState != nil {
		// Already exited.
		return nil
	}
	return p.cmd.Process.Kill()
}
