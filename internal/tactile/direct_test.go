package tactile

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newShellExecutor(t *testing.T) *DirectExecutor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	return NewDirectExecutorWithConfig(ExecutorConfig{
		AllowedBinaries:    []string{"sh"},
		DefaultTimeout:     5 * time.Second,
		WorkingDirectory:   t.TempDir(),
		AllowedEnvironment: []string{"PATH"},
		MaxOutputBytes:     64,
	})
}

func TestExecute_Success(t *testing.T) {
	e := newShellExecutor(t)
	res, err := e.Execute(context.Background(), Command{Binary: "sh", Arguments: []string{"-c", "echo hello; echo oops >&2"}})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "hello\n\noops\n", res.Combined)
}

func TestExecute_NonZeroExitIsNotAnError(t *testing.T) {
	e := newShellExecutor(t)
	res, err := e.Execute(context.Background(), Command{Binary: "sh", Arguments: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Succeeded())
}

func TestExecute_Timeout(t *testing.T) {
	e := newShellExecutor(t)
	res, err := e.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "exec sleep 5"},
		Timeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Killed)
	assert.Contains(t, res.KillReason, "timeout")
}

func TestExecute_RefusesUnlistedBinary(t *testing.T) {
	e := newShellExecutor(t)
	_, err := e.Execute(context.Background(), Command{Binary: "rm", Arguments: []string{"-rf", "/"}})
	assert.True(t, errors.Is(err, ErrBinaryNotAllowed))
	assert.False(t, e.Available("rm"))
	assert.True(t, e.Available("sh"))
}

func TestExecute_ScrubsEnvironment(t *testing.T) {
	t.Setenv("TASKAGENT_SECRET", "hunter2")
	e := newShellExecutor(t)
	res, err := e.Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", `printf "%s|%s" "$TASKAGENT_SECRET" "$EXTRA"`},
		Environment: []string{"EXTRA=ok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "|ok", res.Stdout)
}

func TestExecute_TruncatesOutput(t *testing.T) {
	e := newShellExecutor(t)
	res, err := e.Execute(context.Background(), Command{Binary: "sh", Arguments: []string{"-c", "head -c 200 /dev/zero"}})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Stdout, 64)
	assert.EqualValues(t, 136, res.TruncatedBytes)
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 5}
	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = lw.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", buf.String())
	assert.True(t, lw.truncated)
	assert.EqualValues(t, 2, lw.discarded)
}

func TestResultTail(t *testing.T) {
	r := &ExecutionResult{Combined: "  0123456789  "}
	assert.Equal(t, "0123456789", r.Tail(20))
	assert.Equal(t, "...789", r.Tail(3))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "git", Command{Binary: "git"}.CommandString())
	assert.Equal(t, "git commit -m x", Command{Binary: "git", Arguments: []string{"commit", "-m", "x"}}.CommandString())
}
