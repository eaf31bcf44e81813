package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// WriteExecutable writes a /bin/sh script to dir/name and marks it executable.
// Tests using it are skipped on Windows.
func WriteExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// EchoHarness writes a harness that runs its first argument as a program,
// forwarding stdin, stdout, stderr and the exit status, which is the
// contract of the real interpreter.
func EchoHarness(t *testing.T, dir string) string {
	t.Helper()
	return WriteExecutable(t, dir, "fake-harness", `exec "$1"`)
}

// TouchMake writes a build tool that creates each requested target as an
// executable shell script copying stdin to stdout.
func TouchMake(t *testing.T, dir string) string {
	t.Helper()
	return WriteExecutable(t, dir, "fake-make", `for target in "$@"; do
  printf '#!/bin/sh\ncat\n' > "$target"
  chmod +x "$target"
done`)
}

// FailingMake writes a build tool that always exits with status code.
func FailingMake(t *testing.T, dir string, code string) string {
	t.Helper()
	return WriteExecutable(t, dir, "fake-make", `echo "make: *** no rule to make target" >&2
exit `+code)
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
