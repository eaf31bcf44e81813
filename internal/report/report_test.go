package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/spec"
)

func echoSpec() *spec.Spec {
	return &spec.Spec{
		Binary: "echo_bin",
		Source: filepath.Join("cases", "echo.json"),
		Cases: []spec.Case{
			{Name: "empty", Stdin: []byte{}, Stdout: []byte{}},
			{Name: "deadbeef", Stdin: []byte{}, Stdout: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}
}

func missingSpec() *spec.Spec {
	return &spec.Spec{
		Binary: "missing_bin",
		Source: filepath.Join("cases", "missing.json"),
		Cases:  []spec.Case{{Name: "a"}, {Name: "b"}},
	}
}

// drive replays a fixed run through r and returns the summary it saw.
func drive(r Reporter, withFailures bool) *Summary {
	s := echoSpec()
	sum := &Summary{RunID: "run-1", Specs: 1, LogDir: "logs", Duration: 1500 * time.Millisecond}

	r.BeginSpec(s)
	pass := &Outcome{Spec: s, Case: s.Cases[0], Result: &harness.Result{Duration: 20 * time.Millisecond}}
	r.CaseResult(pass)
	sum.Record(pass)

	if withFailures {
		fail := &Outcome{
			Spec:      s,
			Case:      s.Cases[1],
			Result:    &harness.Result{ExitCode: 0},
			Issues:    []string{"stdout mismatch (expected deadbeef got )"},
			Artifacts: []string{"logs/echo_bin/deadbeef.stdout", "logs/echo_bin/deadbeef.stderr"},
		}
		r.CaseResult(fail)
		sum.Record(fail)

		m := missingSpec()
		r.BuildMissing(m)
		sum.RecordMissing(m)
		sum.Specs++
	}

	r.Summary(sum)
	return sum
}

func TestTextReporter_Golden(t *testing.T) {
	tests := []struct {
		name         string
		withFailures bool
	}{
		{"text_all_pass", false},
		{"text_mixed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			drive(NewTextReporter(out, errOut, false), tt.withFailures)

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, tt.name, out.Bytes())

			if tt.withFailures {
				assert.Equal(t, "[BUILD MISSING] missing_bin\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestTextReporter_Colored(t *testing.T) {
	out := &bytes.Buffer{}
	drive(NewTextReporter(out, &bytes.Buffer{}, true), true)

	assert.Contains(t, out.String(), "\x1b[32mOK")
	assert.Contains(t, out.String(), "\x1b[31mFAIL")
}

func TestSummary_Counts(t *testing.T) {
	sum := drive(NewTextReporter(&bytes.Buffer{}, &bytes.Buffer{}, false), true)

	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 3, sum.Failures)
	assert.Equal(t, 2, sum.Missing)
	assert.False(t, sum.OK())

	clean := drive(NewTextReporter(&bytes.Buffer{}, &bytes.Buffer{}, false), false)
	assert.True(t, clean.OK())
}

func TestJSONReporter_Report(t *testing.T) {
	r := NewJSONReporter()
	drive(r, true)
	rep := r.Report()

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 3, rep.Failures)
	assert.Equal(t, 2, rep.Missing)
	assert.Equal(t, "logs", rep.LogDir)
	assert.Equal(t, int64(1500), rep.DurationMS)
	require.Len(t, rep.Specs, 2)

	echo := rep.Specs[0]
	assert.Equal(t, "echo_bin", echo.Binary)
	require.Len(t, echo.Cases, 2)
	assert.True(t, echo.Cases[0].Pass)
	assert.Equal(t, int64(20), echo.Cases[0].DurationMS)
	require.NotNil(t, echo.Cases[0].ExitCode)
	assert.Equal(t, 0, *echo.Cases[0].ExitCode)
	assert.False(t, echo.Cases[1].Pass)
	assert.Len(t, echo.Cases[1].Artifacts, 2)

	missing := rep.Specs[1]
	assert.True(t, missing.BuildMissing)
	require.Len(t, missing.Cases, 2)
	assert.False(t, missing.Cases[0].Pass)
	assert.Nil(t, missing.Cases[0].ExitCode)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"build_missing":true`)
}

func TestJSONReporter_EmptyRunHasSpecsArray(t *testing.T) {
	r := NewJSONReporter()
	r.Summary(&Summary{})

	data, err := json.Marshal(r.Report())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"specs":[]`)
	assert.NotContains(t, string(data), "log_dir")
}

func TestArtifacts_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	a := NewArtifacts(dir)

	paths, err := a.Write("echo_bin", "deadbeef", []byte{0x01, 0x02}, []byte("boom\n"))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "echo_bin", "deadbeef.stdout"), paths[0])
	assert.Equal(t, filepath.Join(dir, "echo_bin", "deadbeef.stderr"), paths[1])

	stdout, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, stdout)

	stderr, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "boom\n", string(stderr))
}

func TestArtifacts_WriteEmptyStreams(t *testing.T) {
	a := NewArtifacts(t.TempDir())

	paths, err := a.Write("bin", "case", nil, nil)
	require.NoError(t, err)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	}
}

func TestArtifacts_OverwritesPreviousRun(t *testing.T) {
	a := NewArtifacts(t.TempDir())

	_, err := a.Write("bin", "case", []byte("first run"), nil)
	require.NoError(t, err)
	paths, err := a.Write("bin", "case", []byte("2nd"), nil)
	require.NoError(t, err)

	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "2nd", string(got))
}

func TestArtifacts_StayInsideLogDir(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifacts(dir)

	stdoutPath, _ := a.Paths("..", "../../etc/passwd")
	rel, err := filepath.Rel(dir, stdoutPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("_..", ".._.._etc_passwd.stdout"), rel)
}
