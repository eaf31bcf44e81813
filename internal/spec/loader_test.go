package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse_JSON(t *testing.T) {
	s, err := Parse("echo.json", []byte(`{
  "binary": "echo_bin",
  "cases": [
    {"name": "empty"},
    {"name": "hello", "stdin_hex": "68 69", "stdout_hex": "0x6869", "exit_code": 3}
  ]
}`))
	require.NoError(t, err)

	assert.Equal(t, "echo_bin", s.Binary)
	assert.Equal(t, "echo.json", s.Source)
	require.Len(t, s.Cases, 2)

	assert.Equal(t, "empty", s.Cases[0].Name)
	assert.Empty(t, s.Cases[0].Stdin)
	assert.Empty(t, s.Cases[0].Stdout)
	assert.Equal(t, 0, s.Cases[0].ExitCode)

	assert.Equal(t, []byte("hi"), s.Cases[1].Stdin)
	assert.Equal(t, []byte("hi"), s.Cases[1].Stdout)
	assert.Equal(t, 3, s.Cases[1].ExitCode)
}

func TestParse_YAML(t *testing.T) {
	s, err := Parse("sort.yaml", []byte(`
binary: sort_bin
cases:
  - name: three
    stdin_hex: "03 02 01"
    stdout_hex: "01 02 03"
  - name: negative_exit
    exit_code: -1
`))
	require.NoError(t, err)

	assert.Equal(t, "sort_bin", s.Binary)
	require.Len(t, s.Cases, 2)
	assert.Equal(t, []byte{3, 2, 1}, s.Cases[0].Stdin)
	assert.Equal(t, -1, s.Cases[1].ExitCode)
}

func TestParse_UnknownFieldsIgnored(t *testing.T) {
	s, err := Parse("x.json", []byte(`{
  "binary": "b",
  "comment": "ignored",
  "cases": [{"name": "c", "notes": ["also", "ignored"]}]
}`))
	require.NoError(t, err)
	assert.Equal(t, "c", s.Cases[0].Name)
}

func TestParse_YAMLQuotedScalars(t *testing.T) {
	s, err := Parse("dates.yaml", []byte(`
binary: "2020"
cases:
  - name: "2020-01-01"
    stdout_hex: "00"
  - &base
    name: aliased
  - <<: *base
    name: merged
`))
	require.NoError(t, err)

	assert.Equal(t, "2020", s.Binary)
	require.Len(t, s.Cases, 3)
	assert.Equal(t, "2020-01-01", s.Cases[0].Name)
	assert.Equal(t, "merged", s.Cases[2].Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		content string
		want    string
	}{
		{"malformed json", "a.json", `{"binary": `, "failed to parse"},
		{"json trailing comma", "a.json", `{"binary": "b", "cases": [{"name": "c"},]}`, "failed to parse"},
		{"json comment", "a.json", "// hi\n{\"binary\": \"b\", \"cases\": [{\"name\": \"c\"}]}", "failed to parse"},
		{"json unquoted keys", "a.json", `{binary: "b", cases: [{name: "c"}]}`, "failed to parse"},
		{"json without braces", "a.json", `"binary": "b", "cases": [{"name": "c"}]`, "failed to parse"},
		{"json expression", "a.json", `{"binary": "b", "cases": [{"name": "c", "exit_code": 1 + 2}]}`, "failed to parse"},
		{"malformed yaml", "a.yaml", "binary: [unclosed", "failed to parse"},
		{"not an object", "a.yaml", "- 1\n- 2\n", "spec must be an object"},
		{"empty yaml", "a.yaml", "", "spec must be an object"},
		{"yaml timestamp name", "a.yaml", "binary: b\ncases:\n  - name: 2020-01-01\n", `value "2020-01-01" has type !!timestamp`},
		{"yaml timestamp binary", "a.yaml", "binary: 2020-01-01\ncases:\n  - name: c\n", "quote it to use it as a string"},
		{"yaml int key", "a.yaml", "1: x\nbinary: b\ncases:\n  - name: c\n", `line 1: mapping key "1" is not a string`},
		{"yaml binary tag", "a.yaml", "binary: !!binary aGk=\ncases:\n  - name: c\n", "has type !!binary"},
		{"missing binary", "a.json", `{"cases": [{"name": "c"}]}`, "missing or invalid 'binary' field"},
		{"empty binary", "a.json", `{"binary": "", "cases": [{"name": "c"}]}`, "missing or invalid 'binary' field"},
		{"binary wrong type", "a.json", `{"binary": 5, "cases": [{"name": "c"}]}`, "invalid spec"},
		{"missing cases", "a.json", `{"binary": "b"}`, "missing or invalid 'cases' list"},
		{"empty cases", "a.json", `{"binary": "b", "cases": []}`, "missing or invalid 'cases' list"},
		{"cases wrong type", "a.json", `{"binary": "b", "cases": "nope"}`, "invalid spec"},
		{"case not object", "a.json", `{"binary": "b", "cases": [7]}`, "invalid spec"},
		{"case missing name", "a.json", `{"binary": "b", "cases": [{"stdin_hex": "00"}]}`, "case #0: missing a name"},
		{"exit code not int", "a.json", `{"binary": "b", "cases": [{"name": "c", "exit_code": "3"}]}`, "invalid spec"},
		{"duplicate names", "a.json", `{"binary": "b", "cases": [{"name": "c"}, {"name": "c"}]}`, "case c: duplicate case name"},
		{"names share a log file", "a.json", `{"binary": "b", "cases": [{"name": "a/b"}, {"name": "a_b"}]}`, `case a_b: duplicate case name: "a/b" and "a_b" share log files`},
		{"names differ only in normalisation", "a.json", `{"binary": "b", "cases": [{"name": "caf\u00e9"}, {"name": "cafe\u0301"}]}`, "duplicate case name"},
		{"odd stdin", "a.json", `{"binary": "b", "cases": [{"name": "c", "stdin_hex": "abc"}]}`, "a.json::c stdin_hex: hex data has odd length"},
		{"bad stdout digits", "a.json", `{"binary": "b", "cases": [{"name": "c", "stdout_hex": "zz"}]}`, "a.json::c stdout_hex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source, []byte(tt.content))
			require.Error(t, err)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.source, loadErr.Source)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "b_sort.json", `{"binary": "sort", "cases": [{"name": "one"}]}`)
	writeSource(t, dir, "a_add.yaml", "binary: add\ncases:\n  - name: one\n")
	writeSource(t, dir, "c_mul.yml", "binary: mul\ncases:\n  - name: one\n")
	writeSource(t, dir, "README.md", "not a spec")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.json"), 0755))

	specs, err := LoadDir(dir, "")
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, []string{"add", "sort", "mul"}, Binaries(specs))
	assert.Equal(t, 3, CaseCount(specs))

	specs, err = LoadDir(dir, "b_*")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "sort", specs[0].Binary)
}

func TestLoadDir_NoSources(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "notes.txt", "nothing here")

	_, err := LoadDir(dir, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSources))
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spec directory")
}

func TestLoadDir_OneBadSourceFailsAll(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.json", `{"binary": "a", "cases": [{"name": "ok"}]}`)
	writeSource(t, dir, "b.json", `{"binary": "b", "cases": []}`)

	specs, err := LoadDir(dir, "")
	require.Error(t, err)
	assert.Nil(t, specs)
	assert.Contains(t, err.Error(), "b.json")
}

func TestLoadDir_InvalidFilter(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.json", `{"binary": "a", "cases": [{"name": "ok"}]}`)

	_, err := LoadDir(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestLoadDir_DuplicateAcrossSources(t *testing.T) {
	dir := t.TempDir()
	first := writeSource(t, dir, "a.json", `{"binary": "tool", "cases": [{"name": "x/y"}]}`)
	writeSource(t, dir, "b.yaml", "binary: tool\ncases:\n  - name: x_y\n")

	_, err := LoadDir(dir, "")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, filepath.Join(dir, "b.yaml"), loadErr.Source)
	assert.Equal(t, "x_y", loadErr.Case)
	assert.Contains(t, err.Error(), "duplicate case name")
	assert.Contains(t, err.Error(), "also in "+first)
}

func TestLoadDir_SameCaseNameOtherBinary(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.json", `{"binary": "one", "cases": [{"name": "c"}]}`)
	writeSource(t, dir, "b.json", `{"binary": "two", "cases": [{"name": "c"}]}`)

	specs, err := LoadDir(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, CaseCount(specs))
}
