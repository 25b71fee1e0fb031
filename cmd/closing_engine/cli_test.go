package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	want := []string{
		"serve",
		"migrate",
		"processes list",
		"processes history",
		"processes period",
		"processes execute",
		"operators create",
		"operators token",
		"operators disable",
	}
	for _, path := range want {
		cmd, _, err := rootCmd.Find(strings.Fields(path))
		require.NoError(t, err, path)
		assert.Equal(t, strings.Fields(path)[len(strings.Fields(path))-1], cmd.Name())
	}
}

func TestProcessesExecute_RequiredFlags(t *testing.T) {
	for _, name := range []string{"file", "operator"} {
		flag := processesExecuteCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	}
}

func TestReadExecutionRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"category":"UNI","data_type":"U","month":12,"year":2024,"process_codes":["P1","P2"],"company":"0042","preview":true}`,
	), 0o644))

	req, err := readExecutionRequest(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "UNI", req.Category)
	assert.Equal(t, []string{"P1", "P2"}, req.ProcessCodes)
	assert.True(t, req.Preview)
	assert.Equal(t, "0042", req.Company)
}

func TestReadExecutionRequest_Stdin(t *testing.T) {
	req, err := readExecutionRequest("-", strings.NewReader(
		`{"category":"COL","data_type":"C","month":1,"year":2025,"process_codes":["P9"]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, req.Month)
}

func TestReadExecutionRequest_Rejects(t *testing.T) {
	dir := t.TempDir()

	_, err := readExecutionRequest(filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read execution request")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"category":"UNI","month":13}`), 0o644))
	_, err = readExecutionRequest(bad, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is invalid")
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("correct horse\nignored"))
	require.NoError(t, err)
	assert.Equal(t, "correct horse", pw)

	pw, err = readPassword(strings.NewReader("no-newline-pw"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline-pw", pw)

	_, err = readPassword(strings.NewReader("short\n"))
	assert.Error(t, err)
}

func TestNewApp_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := newApp(t.Context(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNewApp_WithoutDatabase(t *testing.T) {
	t.Setenv("LOG_FORMAT", "text")
	a, err := newApp(t.Context(), false)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.db)
	assert.NotNil(t, a.log)
	assert.NotNil(t, a.audit)
}
