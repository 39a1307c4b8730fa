package util

import (
	"fmt"
	"os/exec"

	"github.com/supporttools/host-rescue/pkg/types"
)

// RequiredPrograms are the external programs a rescue run spawns. The ssh
// client carries both the login-detection and the PDU terminal sessions.
var RequiredPrograms = []string{"ssh"}

// lookPath allows substituting exec.LookPath in tests.
var lookPath = exec.LookPath

// CheckDependencies verifies that every required external program is present
// in PATH. It returns an error wrapping types.ErrDependencyMissing naming the
// first missing program; nothing has been attempted against any host when it
// fails.
func CheckDependencies() error {
	for _, name := range RequiredPrograms {
		if _, err := lookPath(name); err != nil {
			return fmt.Errorf("%w: %s not found in PATH", types.ErrDependencyMissing, name)
		}
	}
	return nil
}
