// Package spec loads declarative test specifications: a target binary and
// its cases, with stdin and expected stdout given as hex text.
package spec

// Spec is one parsed specification source: a target binary and the
// ordered cases to run against it.
type Spec struct {
	// Binary is the build target and the artifact name in the test directory.
	Binary string

	// Source is the file the spec was loaded from, for diagnostics.
	Source string

	// Cases are kept in file order. Never empty after a successful load.
	Cases []Case
}

// Case is one fixture: bytes fed to stdin and the expected observable
// behavior of the program.
type Case struct {
	Name     string
	Stdin    []byte
	Stdout   []byte
	ExitCode int
}

// rawSpec mirrors the on-disk layout after CUE defaults are applied.
type rawSpec struct {
	Binary string    `json:"binary"`
	Cases  []rawCase `json:"cases"`
}

type rawCase struct {
	Name      string `json:"name"`
	StdinHex  string `json:"stdin_hex"`
	StdoutHex string `json:"stdout_hex"`
	ExitCode  int    `json:"exit_code"`
}

// Binaries returns the binary names referenced by specs, in spec order.
// Duplicates are preserved; the build step deduplicates.
func Binaries(specs []*Spec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Binary)
	}
	return names
}

// CaseCount returns the number of cases across all specs.
func CaseCount(specs []*Spec) int {
	n := 0
	for _, s := range specs {
		n += len(s.Cases)
	}
	return n
}
