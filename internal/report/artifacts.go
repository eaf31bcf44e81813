package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/conform/internal/spec"
)

// Artifacts writes the captured streams of failing cases under Dir.
//
// Layout: <Dir>/<binary>/<case>.stdout and <Dir>/<binary>/<case>.stderr,
// raw bytes as captured. Names pass through spec.FileName.
type Artifacts struct {
	Dir string
}

// NewArtifacts creates a writer rooted at dir. The directory is created
// lazily on the first failure.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{Dir: dir}
}

// Paths returns the stdout and stderr artifact paths for a case.
func (a *Artifacts) Paths(binary, caseName string) (stdoutPath, stderrPath string) {
	dir := filepath.Join(a.Dir, spec.FileName(binary))
	base := spec.FileName(caseName)
	return filepath.Join(dir, base+".stdout"), filepath.Join(dir, base+".stderr")
}

// Write persists stdout and stderr for a failing case and returns the
// paths written. Existing files are overwritten.
func (a *Artifacts) Write(binary, caseName string, stdout, stderr []byte) ([]string, error) {
	stdoutPath, stderrPath := a.Paths(binary, caseName)

	if err := os.MkdirAll(filepath.Dir(stdoutPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := os.WriteFile(stdoutPath, stdout, 0644); err != nil {
		return nil, fmt.Errorf("write stdout log: %w", err)
	}
	if err := os.WriteFile(stderrPath, stderr, 0644); err != nil {
		return nil, fmt.Errorf("write stderr log: %w", err)
	}

	return []string{stdoutPath, stderrPath}, nil
}
