package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskagent/internal/dispatch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeRunner) Dispatch(_ context.Context, text string) (*dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if text == "bad" {
		return nil, dispatch.ErrUnrecognizedTask
	}
	return &dispatch.Result{Status: "done: " + text}, nil
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func startWatcher(t *testing.T, dir string, r Runner) (*Watcher, func()) {
	t.Helper()
	w := New(dir, r, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return w, func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

func readEventually(t *testing.T, path string) string {
	t.Helper()
	var data []byte
	require.Eventually(t, func() bool {
		var err error
		data, err = os.ReadFile(path)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "no result at %s", path)
	return string(data)
}

func TestWatcher_ProcessesExistingTasks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.task"), []byte("first\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.task"), []byte("bad"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	r := &fakeRunner{}
	w, stop := startWatcher(t, dir, r)

	assert.Equal(t, "done: first\n", readEventually(t, filepath.Join(dir, "a.status")))
	assert.Equal(t, dispatch.ErrUnrecognizedTask.Error()+"\n", readEventually(t, filepath.Join(dir, "b.error")))
	stop()

	assert.Equal(t, []string{"first", "bad"}, r.seen())
	assert.NoFileExists(t, filepath.Join(dir, "a.task"))
	assert.NoFileExists(t, filepath.Join(dir, "b.task"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	stats := w.Stats()
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "b.task", stats.LastTask)
}

func TestWatcher_PicksUpNewTasks(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	_, stop := startWatcher(t, dir, r)
	defer stop()

	// Let the watcher register the directory before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.task"), []byte("later"), 0644))

	assert.Equal(t, "done: later\n", readEventually(t, filepath.Join(dir, "new.status")))
}

func TestWatcher_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	_, stop := startWatcher(t, dir, &fakeRunner{})
	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	stop()
}
