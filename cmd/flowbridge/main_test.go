package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/cli"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// "-h" makes cli.Parse return shouldExit=true.
	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, []string{"run", "--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestRun_InvalidFlowFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "main.hcl", `
		node "a" {
			type = "csv"
		# Missing closing brace here
	`)
	err := run(context.Background(), &bytes.Buffer{}, []string{"--log-level", "error", "run", path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "main.hcl")
}

func TestRun_FailedNodeExitsNonZero(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "flow.json", `{"nodes": {"people": {"type": "csv", "path": "/definitely/missing.csv"}}}`)
	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"--log-level", "error", "run", path})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, exitErr.Message, "partially_failed")
	require.Contains(t, exitErr.Message, "people")
}

func TestRun_TestModeSkipsIO(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "flow.json", `{"nodes": {"people": {"type": "csv", "path": "/definitely/missing.csv"}}}`)
	err := run(context.Background(), &bytes.Buffer{}, []string{"--log-level", "error", "run", "--test", path})
	require.NoError(t, err)
}
