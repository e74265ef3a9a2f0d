package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portfind/internal/model"
	"github.com/shinji-kodama/portfind/internal/port"
)

// execute runs a fresh root command with logging silenced and returns what
// it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--silent"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// occupyPort holds a TCP listener on an OS-assigned port until the test
// ends.
func occupyPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

// requireExitCode asserts err is a CLIError carrying code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	assert.Equal(t, code, cliErr.Code, "unexpected exit code for %v", err)
}

func TestRoot_FindsPortInRange(t *testing.T) {
	out, err := execute(t, "--start", "50000", "--end", "50100", "--retries", "2", "--delay", "10ms")
	require.NoError(t, err)

	p, err := strconv.Atoi(strings.TrimSpace(out))
	require.NoError(t, err, "stdout should hold only the port: %q", out)
	assert.GreaterOrEqual(t, p, 50000)
	assert.LessOrEqual(t, p, 50100)
}

func TestRoot_JSONOutput(t *testing.T) {
	out, err := execute(t, "--json", "--start", "50000", "--end", "50100", "--delay", "0")
	require.NoError(t, err)

	var result model.PortResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, model.NetworkTCP, result.Network)
	assert.GreaterOrEqual(t, result.Port, 50000)
	assert.LessOrEqual(t, result.Port, 50100)
}

// TestRoot_OccupiedRangeExhausted verifies the exit code when the only port
// of the range is held by another listener.
func TestRoot_OccupiedRangeExhausted(t *testing.T) {
	p := occupyPort(t)

	_, err := execute(t, "--start", strconv.Itoa(p), "--end", strconv.Itoa(p), "--retries", "1")
	requireExitCode(t, err, model.ExitPortRangeExhausted)

	var exhausted *port.PortRangeExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, p, exhausted.StartPort)
	assert.Equal(t, 1, exhausted.Retries)
}

func TestRoot_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"inverted range", []string{"--start", "100", "--end", "50"}},
		{"end out of domain", []string{"--end", "70000"}},
		{"zero retries", []string{"--retries", "0"}},
		{"negative delay", []string{"--delay", "-5ms"}},
		{"unknown network", []string{"--network", "sctp"}},
		{"negative concurrency", []string{"--concurrency", "-1"}},
		{"missing config", []string{"--config", "/nonexistent/portfind.yml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			requireExitCode(t, err, model.ExitInvalidInput)
		})
	}
}

func TestRoot_RejectsPositionalArgs(t *testing.T) {
	_, err := execute(t, "4000")
	assert.Error(t, err)
}

// TestRoot_ConfigFile verifies that the file supplies defaults and flags
// still override it.
func TestRoot_ConfigFile(t *testing.T) {
	p := occupyPort(t)
	path := filepath.Join(t.TempDir(), "portfind.yml")
	content := fmt.Sprintf("start: %d\nend: %d\nretries: 1\ndelay: 0\n", p, p)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Run("file values are used", func(t *testing.T) {
		_, err := execute(t, "--config", path)
		requireExitCode(t, err, model.ExitPortRangeExhausted)

		var exhausted *port.PortRangeExhausted
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, p, exhausted.StartPort)
		assert.Equal(t, p, exhausted.EndPort)
	})

	t.Run("flags override file", func(t *testing.T) {
		out, err := execute(t, "--config", path, "--start", "50000", "--end", "50100")
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(out))
	})
}

func TestRoot_JSONCConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfind.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // inverted on purpose
  "start": 6000,
  "end": 5000,
}`), 0o644))

	_, err := execute(t, "--config", path)
	requireExitCode(t, err, model.ExitInvalidInput)
	assert.Contains(t, err.Error(), "startPort")
}

func TestRoot_EnvironmentVariables(t *testing.T) {
	t.Run("env is used", func(t *testing.T) {
		t.Setenv("PORTFIND_RETRIES", "0")

		_, err := execute(t)
		requireExitCode(t, err, model.ExitInvalidInput)

		var invalid *port.ValidationError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "retries", invalid.Field)
	})

	t.Run("delay in milliseconds", func(t *testing.T) {
		t.Setenv("PORTFIND_DELAY", "-5")

		_, err := execute(t)
		var invalid *port.ValidationError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "delay", invalid.Field)
	})

	t.Run("dashed keys use underscores", func(t *testing.T) {
		t.Setenv("PORTFIND_START", "50000")
		t.Setenv("PORTFIND_END", "50100")
		t.Setenv("PORTFIND_EXCLUDE_DOCKER", "false")

		out, err := execute(t)
		require.NoError(t, err)
		p, err := strconv.Atoi(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 50000)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("PORTFIND_RETRIES", "0")

		_, err := execute(t, "--retries", "1", "--start", "50000", "--end", "50100")
		assert.NoError(t, err)
	})
}

func TestRoot_MalformedEnvironmentValues(t *testing.T) {
	tests := []struct {
		env   string
		value string
		field string
	}{
		{"PORTFIND_START", "abc", "startPort"},
		{"PORTFIND_END", "4010x", "endPort"},
		{"PORTFIND_RETRIES", "many", "retries"},
		{"PORTFIND_CONCURRENCY", "1.5", "concurrency"},
		{"PORTFIND_DELAY", "soon", "delay"},
		{"PORTFIND_STRICT", "maybe", "strict"},
		{"PORTFIND_EXCLUDE_DOCKER", "yes please", "excludeDocker"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			out, err := execute(t)
			assert.Empty(t, out, "nothing may be printed for a malformed setting")
			requireExitCode(t, err, model.ExitInvalidInput)

			var invalid *port.ValidationError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

// TestRoot_LogFileIsClosed runs with --log-file and debug logging, then
// checks that the file received the command's log lines and was released.
func TestRoot_LogFileIsClosed(t *testing.T) {
	p := occupyPort(t)
	path := filepath.Join(t.TempDir(), "portfind.log")

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--verbose", "--log-file", path, "check", strconv.Itoa(p)})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Nil(t, logFileHandle, "log file should be closed after the command")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "checking ports")
	assert.NotContains(t, string(data), "resolved configuration", "check does not use the search range")
}

func TestRoot_LogFileStaysOpenUntilExecuteCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfind.log")

	_, err := execute(t, "--log-file", path, "--retries", "0")
	require.Error(t, err)
	require.NotNil(t, logFileHandle, "PersistentPostRun does not run after an error")

	closeLogFile()
	assert.Nil(t, logFileHandle)
	assert.NotPanics(t, closeLogFile)
}

func TestCheck(t *testing.T) {
	p := occupyPort(t)

	// "--" keeps the negative port from being parsed as a flag.
	out, err := execute(t, "check", strconv.Itoa(p), "--", "-1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("%d\toccupied", p), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "-1\tfailed: invalid port"), "got %q", lines[1])
}

func TestCheck_JSON(t *testing.T) {
	p := occupyPort(t)

	out, err := execute(t, "check", "--json", strconv.Itoa(p))
	require.NoError(t, err)

	var reports []model.ProbeReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, model.ProbeReport{Port: p, Status: "occupied"}, reports[0])
}

func TestCheck_InvalidArgs(t *testing.T) {
	_, err := execute(t, "check", "http")
	requireExitCode(t, err, model.ExitInvalidInput)

	_, err = execute(t, "check")
	assert.Error(t, err, "at least one port is required")
}

func TestParsePortArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int
		wantErr bool
	}{
		{"single", []string{"8080"}, []int{8080}, false},
		{"range", []string{"4000-4003"}, []int{4000, 4001, 4002, 4003}, false},
		{"mixed keeps order", []string{"9000", "10-11"}, []int{9000, 10, 11}, false},
		{"negative port passes through", []string{"-1"}, []int{-1}, false},
		{"not a number", []string{"http"}, nil, true},
		{"bad range end", []string{"4000-x"}, nil, true},
		{"inverted range", []string{"4010-4000"}, nil, true},
		{"huge range", []string{"0-70000"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToCLIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code model.ExitCode
	}{
		{"validation", &port.ValidationError{Field: "retries", Reason: "0"}, model.ExitInvalidInput},
		{"exhausted", &port.PortRangeExhausted{StartPort: 1, EndPort: 2, Retries: 1}, model.ExitPortRangeExhausted},
		{"probe failure", &port.ProbeFailure{Port: 80, Cause: errors.New("denied")}, model.ExitProbeFailed},
		{"cancelled", context.Canceled, model.ExitGeneralError},
		{"existing CLI error", model.NewCLIError(model.ExitDockerNotRunning, "down"), model.ExitDockerNotRunning},
		{"plain config error", errors.New("invalid network"), model.ExitInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toCLIError(tt.err)
			requireExitCode(t, err, tt.code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
