// Package check compares a harness result against a case's expectations.
package check

import (
	"bytes"
	"fmt"
	"time"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/spec"
)

// Compare returns one human-readable description per failed check.
// An empty slice means the case passed.
//
// The exit code and stdout checks are evaluated independently so both can
// be reported at once. Stderr is never compared.
func Compare(c spec.Case, result *harness.Result) []string {
	var issues []string

	if result.TimedOut {
		issues = append(issues, fmt.Sprintf("timed out after %s", result.Duration.Round(time.Millisecond)))
	}
	if result.ExitCode != c.ExitCode {
		issues = append(issues, fmt.Sprintf("exit code %d != expected %d", result.ExitCode, c.ExitCode))
	}
	if !bytes.Equal(result.Stdout, c.Stdout) {
		issues = append(issues, fmt.Sprintf("stdout mismatch (expected %s got %s)",
			spec.EncodeHex(c.Stdout), spec.EncodeHex(result.Stdout)))
	}

	return issues
}

// Passed reports whether result satisfies every expectation of c.
func Passed(c spec.Case, result *harness.Result) bool {
	return len(Compare(c, result)) == 0
}
