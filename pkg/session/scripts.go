package session

import (
	"fmt"
	"regexp"
	"time"
)

// Patterns shared by both scripts. The host-key confirmation prompt may
// reappear (e.g. once per key algorithm), so the rules answering it stay on
// their step.
var (
	hostKeyPattern    = regexp.MustCompile(`(?i)are you sure you want to continue connecting`)
	credentialPattern = regexp.MustCompile(`(?i)(password:|passphrase for)`)
	deniedPattern     = regexp.MustCompile(`(?i)(permission denied|access denied)`)
	refusedPattern    = regexp.MustCompile(`(?i)connection refused`)
)

// LoginProbeScript returns the login-detection script. It classifies a host
// as answering when the remote login service presents a credential prompt or
// an explicit access-denied response; both indicate the service is alive and
// evaluating credentials. No credentials are ever sent.
func LoginProbeScript(stepTimeout time.Duration) Script {
	return Script{
		Steps: []Step{
			{
				Timeout: stepTimeout,
				Rules: []Rule{
					{
						Name:    "host-key-confirm",
						Pattern: hostKeyPattern,
						Action:  ActionSend,
						Text:    "yes",
					},
					{
						Name:    "credential-prompt",
						Pattern: credentialPattern,
						Action:  ActionTerminate,
						Class:   ClassSuccess,
					},
					{
						Name:    "access-denied",
						Pattern: deniedPattern,
						Action:  ActionTerminate,
						Class:   ClassSuccess,
					},
					{
						Name:    "connection-refused",
						Pattern: refusedPattern,
						Action:  ActionTerminate,
						Class:   ClassFailure,
					},
				},
			},
		},
	}
}

// OutletCommandScript returns the script that drives a single command through
// the PDU's interactive CLI: authenticate, wait for the command prompt, send
// the command, and wait for the unit's success marker or the prompt's
// reappearance. An exit command is sent best-effort afterwards.
//
// promptPattern is a regular expression matching the unit's command prompt;
// successMarker is matched literally.
func OutletCommandScript(secret, promptPattern, command, successMarker string, stepTimeout time.Duration) (Script, error) {
	prompt, err := regexp.Compile(promptPattern)
	if err != nil {
		return Script{}, fmt.Errorf("invalid CLI prompt pattern %q: %w", promptPattern, err)
	}
	marker, err := regexp.Compile(regexp.QuoteMeta(successMarker))
	if err != nil {
		return Script{}, fmt.Errorf("invalid success marker %q: %w", successMarker, err)
	}

	return Script{
		Epilogue: "exit",
		Steps: []Step{
			{
				Timeout: stepTimeout,
				Rules: []Rule{
					{
						Name:    "host-key-confirm",
						Pattern: hostKeyPattern,
						Action:  ActionSend,
						Text:    "yes",
					},
					{
						Name:    "credential-prompt",
						Pattern: credentialPattern,
						Action:  ActionSendAdvance,
						Text:    secret,
						Secret:  true,
					},
				},
			},
			{
				Timeout: stepTimeout,
				Rules: []Rule{
					{
						Name:    "command-prompt",
						Pattern: prompt,
						Action:  ActionSendAdvance,
						Text:    command,
					},
				},
			},
			{
				Timeout: stepTimeout,
				Rules: []Rule{
					{
						Name:    "success-marker",
						Pattern: marker,
						Action:  ActionTerminate,
						Class:   ClassSuccess,
					},
					{
						Name:    "prompt-reappeared",
						Pattern: prompt,
						Action:  ActionTerminate,
						Class:   ClassSuccess,
					},
				},
			},
		},
	}, nil
}

// SSHArgs builds the argument list for spawning the ssh client against
// user@host. Password prompting is limited to a single round so a wrong
// secret fails fast instead of re-prompting.
func SSHArgs(user, host string) []string {
	return []string{
		"-o", "NumberOfPasswordPrompts=1",
		"-o", "ConnectTimeout=10",
		fmt.Sprintf("%s@%s", user, host),
	}
}
