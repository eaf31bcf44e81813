package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/testutil"
)

var exampleDir = filepath.Join("..", "..", "testdata", "example")

func TestValidateExampleSpecs(t *testing.T) {
	if _, err := os.Stat(exampleDir); os.IsNotExist(err) {
		t.Skip("testdata/example directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{exampleDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ echo.json (echo, 3 case(s))")
	assert.Contains(t, output, "✓ exit.yaml (exit_status, 3 case(s))")
	assert.Contains(t, output, "Valid: 2 spec(s), 6 case(s), binaries: echo, exit_status")
}

func TestValidateExampleSpecsJSON(t *testing.T) {
	if _, err := os.Stat(exampleDir); os.IsNotExist(err) {
		t.Skip("testdata/example directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{exampleDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 6, resp.Data.Cases)
	assert.Equal(t, []string{"echo", "exit_status"}, resp.Data.Binaries)
}

func TestValidateDuplicateCaseNames(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "cases/dup.json",
		`{"binary": "b", "cases": [{"name": "same"}, {"name": "same"}]}`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "duplicate case name")
}

func TestValidateErrorJSONDetails(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "cases/bad.json",
		`{"binary": "b", "cases": [{"name": "odd", "stdout_hex": "f"}]}`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, IsReported(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeLoadFailed, resp.Error.Code)
	assert.Equal(t, "odd", resp.Error.Details["case"])
	assert.Contains(t, resp.Error.Details["reason"], "hex data has odd length")
}

func TestValidateMissingDirectory(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}
