// Package session implements a generic engine for scripted conversations with
// text-oriented interactive services that expose no structured API. A script
// is an explicit data structure (ordered steps, each an ordered rule list)
// so that scripts can be unit-tested independently of any live process.
package session

import (
	"regexp"
	"time"
)

// Classification is the terminal outcome of a scripted session.
type Classification int

const (
	// ClassFailure indicates the session did not reach its goal.
	ClassFailure Classification = iota

	// ClassSuccess indicates the session reached its goal.
	ClassSuccess
)

// String returns a human-readable classification name.
func (c Classification) String() string {
	if c == ClassSuccess {
		return "success"
	}
	return "failure"
}

// ActionKind selects what a matched rule does.
type ActionKind int

const (
	// ActionSend sends the rule's text followed by a line terminator and
	// stays on the current step. Used for multi-round prompts such as
	// host-key confirmation.
	ActionSend ActionKind = iota

	// ActionSendAdvance sends the rule's text and advances to the next step.
	ActionSendAdvance

	// ActionTerminate ends the session immediately with the rule's
	// classification.
	ActionTerminate
)

// Rule is one (pattern, action) pair within a step. Rules are tested in
// declared order against the subordinate's buffered output; the first rule
// whose pattern matches wins, regardless of match position.
type Rule struct {
	// Name identifies the rule in outcomes and logs.
	Name string

	// Pattern is matched against the accumulated output of the current step.
	Pattern *regexp.Regexp

	// Action selects the behavior when the pattern matches.
	Action ActionKind

	// Text is sent for ActionSend and ActionSendAdvance. The driver appends
	// the line terminator.
	Text string

	// Secret marks Text as sensitive. Secret text is never included in any
	// output the driver records.
	Secret bool

	// Class is the session classification for ActionTerminate.
	Class Classification
}

// Step is an ordered rule list with a per-step timeout. A zero Timeout falls
// back to the driver's default.
type Step struct {
	Rules   []Rule
	Timeout time.Duration
}

// Script is an immutable ordered sequence of steps. Scripts are
// configuration, not instance state; the same script value may drive any
// number of sessions.
type Script struct {
	Steps []Step

	// Epilogue, when non-empty, is sent best-effort after a success terminal
	// rule fires, before the subordinate is torn down (typically an exit
	// command). It never affects the classification.
	Epilogue string
}

// Outcome describes how a session ended.
type Outcome struct {
	// Class is the terminal classification.
	Class Classification

	// MatchedRule names the terminal rule that fired, or is empty when the
	// session ended on a step timeout or stream end.
	MatchedRule string

	// Reason is a human-readable explanation.
	Reason string
}

// Success reports whether the session ended with ClassSuccess.
func (o Outcome) Success() bool {
	return o.Class == ClassSuccess
}
