package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskagent/internal/dispatch"
	"taskagent/internal/logging"
	"taskagent/internal/perception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(logging.Reset)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "one two three", joinArgs([]string{"one", "two", " three "}))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(dispatch.ErrUnrecognizedTask))
	assert.Equal(t, 2, exitCode(&dispatch.MissingParameterError{Intent: perception.IntentFetchAPI, Field: perception.FieldDestination}))
	assert.Equal(t, 2, exitCode(errUsage))
	assert.Equal(t, 1, exitCode(&dispatch.HandlerError{Err: errors.New("boom")}))
	assert.Equal(t, 1, exitCode(&dispatch.UnexpectedError{Err: errors.New("boom")}))
}

func TestRunCommand(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "contacts.json")
	require.NoError(t, os.WriteFile(in, []byte(`[{"first_name":"B","last_name":"Z"},{"first_name":"A","last_name":"Y"}]`), 0644))

	out, err := execute(t, "run", "--data-root", root,
		"Sort the array of contacts in "+in+" by last_name, then first_name, and write the result to "+filepath.Join(root, "sorted.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Task A4 completed: Contacts sorted.")

	data, err := os.ReadFile(filepath.Join(root, "sorted.json"))
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), `"Y"`), strings.Index(string(data), `"Z"`))
}

func TestRunCommand_Unrecognized(t *testing.T) {
	_, err := execute(t, "run", "--data-root", t.TempDir(), "make me a sandwich")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dispatch.ErrUnrecognizedTask))
	assert.Equal(t, 2, exitCode(err))
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "--data-root", "/data",
		"Fetch data from API https://api.example.com/items and write to /data/items.json")
	require.NoError(t, err)
	assert.Contains(t, out, "FETCH_API")
	assert.Contains(t, out, "https://api.example.com/items")
	assert.Contains(t, out, "/data/items.json")
}

func TestClassifyCommand_MissingParameter(t *testing.T) {
	out, err := execute(t, "classify", "--data-root", "/data",
		"Fetch data from API https://api.example.com/items")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out, "destination")
}

func TestIntentsCommand(t *testing.T) {
	out, err := execute(t, "intents", "--data-root", "/data")
	require.NoError(t, err)
	for _, intent := range perception.AllIntents() {
		assert.Contains(t, out, intent.String())
	}
	assert.Contains(t, out, "/data/contacts-sorted.json")
}

func TestReadCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), []byte("hello"), 0644))

	out, err := execute(t, "read", "--data-root", root, "note.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = execute(t, "read", "--data-root", root, "/etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "read", "--data-root", root, "missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}
