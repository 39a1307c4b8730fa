package session

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"
)

// fakeProcess is a scripted subordinate process. Output is emitted through a
// pipe; sends are recorded and may trigger further output via onSend.
type fakeProcess struct {
	out *io.PipeReader
	w   *io.PipeWriter

	mu     sync.Mutex
	sent   []string
	killed bool

	// onSend, if set, is called after each Send with the sent text.
	onSend func(p *fakeProcess, text string)
}

func newFakeProcess() *fakeProcess {
	pr, pw := io.Pipe()
	return &fakeProcess{out: pr, w: pw}
}

func (p *fakeProcess) Reader() io.Reader { return p.out }

func (p *fakeProcess) Send(text string) error {
	p.mu.Lock()
	p.sent = append(p.sent, text)
	cb := p.onSend
	p.mu.Unlock()
	if cb != nil {
		cb(p, text)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.killed {
		p.killed = true
		p.w.Close()
	}
	return nil
}

// emit writes output as if the subordinate produced it.
func (p *fakeProcess) emit(s string) {
	go p.w.Write([]byte(s))
}

// end closes the output stream as if the subordinate exited.
func (p *fakeProcess) end() {
	p.w.Close()
}

func (p *fakeProcess) sentLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]string, len(p.sent))
	copy(result, p.sent)
	return result
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeSpawner hands out prepared processes and records spawn calls.
type fakeSpawner struct {
	mu        sync.Mutex
	processes []*fakeProcess
	commands  []string
	args      [][]string
	spawnErr  error
}

func (s *fakeSpawner) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	if len(s.processes) == 0 {
		return nil, fmt.Errorf("no prepared process for spawn of %s", name)
	}
	p := s.processes[0]
	s.processes = s.processes[1:]
	s.commands = append(s.commands, name)
	s.args = append(s.args, args)
	return p, nil
}

func newTestDriver(proc *fakeProcess) (*Driver, *fakeSpawner) {
	spawner := &fakeSpawner{processes: []*fakeProcess{proc}}
	d := NewDriver(200 * time.Millisecond)
	d.SetSpawner(spawner)
	d.epilogueWait = 100 * time.Millisecond
	return d, spawner
}

func terminateRule(name, pattern string, class Classification) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),
		Action:  ActionTerminate,
		Class:   class,
	}
}

func TestRunScriptFirstMatchWinsByRuleOrder(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	// "bar" appears earlier in the output, but "foo" is declared first, so
	// the foo rule must win.
	script := Script{Steps: []Step{{Rules: []Rule{
		terminateRule("foo", "foo", ClassSuccess),
		terminateRule("bar", "bar", ClassFailure),
	}}}}

	proc.emit("bar then foo")
	outcome, err := d.RunScript(context.Background(), "fake", nil, script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success() {
		t.Errorf("expected success, got %s (%s)", outcome.Class, outcome.Reason)
	}
	if outcome.MatchedRule != "foo" {
		t.Errorf("expected rule foo to win, got %q", outcome.MatchedRule)
	}
	if !proc.wasKilled() {
		t.Error("subordinate was not terminated after success")
	}
}

func TestRunScriptSendAndStay(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	// Two host-key style prompts in a row, then the terminal prompt. The
	// confirm rule stays on the same step both times.
	script := Script{Steps: []Step{{Rules: []Rule{
		{Name: "confirm", Pattern: regexp.MustCompile(`continue\?`), Action: ActionSend, Text: "yes"},
		terminateRule("done", "ready", ClassSuccess),
	}}}}

	proc.onSend = func(p *fakeProcess, text string) {
		switch len(p.sentLines()) {
		case 1:
			p.emit("continue?")
		case 2:
			p.emit("ready")
		}
	}
	proc.emit("continue?")

	outcome, err := d.RunScript(context.Background(), "fake", nil, script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got %s (%s)", outcome.Class, outcome.Reason)
	}
	sent := proc.sentLines()
	if len(sent) != 2 || sent[0] != "yes" || sent[1] != "yes" {
		t.Errorf("expected two 'yes' responses, got %v", sent)
	}
}

func TestRunScriptAdvanceThroughSteps(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	script := Script{
		Epilogue: "exit",
		Steps: []Step{
			{Rules: []Rule{{Name: "login", Pattern: regexp.MustCompile("password:"), Action: ActionSendAdvance, Text: "hunter2", Secret: true}}},
			{Rules: []Rule{{Name: "prompt", Pattern: regexp.MustCompile("pdu>"), Action: ActionSendAdvance, Text: `outletOff "web01"`}}},
			{Rules: []Rule{terminateRule("ok", "E000", ClassSuccess)}},
		},
	}

	proc.onSend = func(p *fakeProcess, text string) {
		switch text {
		case "hunter2":
			p.emit("pdu>")
		case `outletOff "web01"`:
			p.emit("E000: Success")
		case "exit":
			p.end()
		}
	}
	proc.emit("password:")

	outcome, err := d.RunScript(context.Background(), "fake", nil, script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got %s (%s)", outcome.Class, outcome.Reason)
	}
	sent := proc.sentLines()
	want := []string{"hunter2", `outletOff "web01"`, "exit"}
	if len(sent) != len(want) {
		t.Fatalf("expected sends %v, got %v", want, sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("send %d: expected %q, got %q", i, want[i], sent[i])
		}
	}
}

func TestRunScriptStepTimeout(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	script := Script{Steps: []Step{{
		Timeout: 50 * time.Millisecond,
		Rules:   []Rule{terminateRule("never", "never-matches", ClassSuccess)},
	}}}

	proc.emit("irrelevant output")

	outcome, err := d.RunScript(context.Background(), "fake", nil, script)
	if err != nil {
		t.Fatalf("timeout should not be a driver error, got: %v", err)
	}
	if outcome.Success() {
		t.Error("expected failure on step timeout")
	}
	if !proc.wasKilled() {
		t.Error("subordinate was not terminated after timeout")
	}
}

func TestRunScriptStreamEnd(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	script := Script{Steps: []Step{{Rules: []Rule{
		terminateRule("never", "never-matches", ClassSuccess),
	}}}}

	proc.end()

	outcome, err := d.RunScript(context.Background(), "fake", nil, script)
	if err != nil {
		t.Fatalf("stream end should not be a driver error, got: %v", err)
	}
	if outcome.Success() {
		t.Error("expected failure on stream end before a terminal rule")
	}
	if !proc.wasKilled() {
		t.Error("subordinate was not terminated after stream end")
	}
}

func TestRunScriptSpawnError(t *testing.T) {
	d := NewDriver(time.Second)
	d.SetSpawner(&fakeSpawner{spawnErr: fmt.Errorf("no such command")})

	script := Script{Steps: []Step{{Rules: []Rule{
		terminateRule("any", ".", ClassSuccess),
	}}}}

	outcome, err := d.RunScript(context.Background(), "missing", nil, script)
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if outcome.Success() {
		t.Error("expected failure outcome on spawn error")
	}
}

func TestRunScriptContextCancelled(t *testing.T) {
	proc := newFakeProcess()
	d, _ := newTestDriver(proc)

	script := Script{Steps: []Step{{
		Timeout: 5 * time.Second,
		Rules:   []Rule{terminateRule("never", "never-matches", ClassSuccess)},
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome, err := d.RunScript(ctx, "fake", nil, script)
	if err == nil {
		t.Fatal("expected context error")
	}
	if outcome.Success() {
		t.Error("expected failure outcome on cancellation")
	}
	if !proc.wasKilled() {
		t.Error("subordinate was not terminated after cancellation")
	}
}

func TestRedactHidesSecrets(t *testing.T) {
	secret := Rule{Text: "hunter2", Secret: true}
	if got := redact(&secret); got != "[redacted]" {
		t.Errorf("secret text leaked into log formatting: %q", got)
	}
	plain := Rule{Text: "yes"}
	if got := redact(&plain); got != `"yes"` {
		t.Errorf("expected plain text to be quoted, got %q", got)
	}
}
