package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Run(t *testing.T) {
	out := &bytes.Buffer{}
	cmd, exit, err := cli.Parse([]string{"--log-level", "DEBUG", "--workers", "3", "run", "flow.yaml", "--trace"}, out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "run", cmd.Name)
	require.NotNil(t, cmd.Run)
	assert.Equal(t, "flow.yaml", cmd.Run.Graph)
	assert.True(t, cmd.Run.Trace)
	assert.False(t, cmd.Run.Test)
	assert.Equal(t, "debug", cmd.Settings.Log.Level)
	assert.Equal(t, 3, cmd.Settings.Executor.Workers)
}

func TestParse_Rerun(t *testing.T) {
	cmd, _, err := cli.Parse([]string{"run", "flow.json", "--only", "a", "--only", "b", "--from-run", "r-1"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cmd.Run.Only)
	assert.Equal(t, "r-1", cmd.Run.FromRun)

	_, _, err = cli.Parse([]string{"run", "flow.json", "--only", "a"}, &bytes.Buffer{})
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParse_ServeWithSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \":9000\"\nlog:\n  format: text\n"), 0o600))

	cmd, _, err := cli.Parse([]string{"-c", path, "serve"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name)
	assert.Equal(t, ":9000", cmd.Settings.Server.Listen)
	assert.Equal(t, "text", cmd.Settings.Log.Format)

	cmd, _, err = cli.Parse([]string{"-c", path, "serve", "--listen", ":7000"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cmd.Settings.Server.Listen)
}

func TestParse_HelpAndUsage(t *testing.T) {
	for name, args := range map[string][]string{
		"help flag":  {"-h"},
		"no command": {},
	} {
		t.Run(name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cmd, exit, err := cli.Parse(args, out)
			require.NoError(t, err)
			assert.True(t, exit)
			assert.Nil(t, cmd)
			assert.Contains(t, out.String(), "Usage:")
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":   {"--nope"},
		"missing graph":  {"run"},
		"bad log format": {"--log-format", "xml", "run", "flow.json"},
		"bad workers":    {"--workers", "-2", "run", "flow.json"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, exit, err := cli.Parse(args, &bytes.Buffer{})
			assert.False(t, exit)
			var exitErr *cli.ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}
