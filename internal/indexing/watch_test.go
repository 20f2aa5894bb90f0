package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherIndexesCreatedFile(t *testing.T) {
	dir := t.TempDir()
	p, store, vectors := newPipeline(t)

	applied := make(chan WatchEvent, 8)
	w, err := NewWatcher(p, dir, func(ev WatchEvent, err error) {
		require.NoError(t, err)
		applied <- ev
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond) // let the watcher register directory watches
	writeFile(t, dir, "new.go", "package a\n\nfunc Foo() int {\n\treturn 1\n}\n")

	select {
	case ev := <-applied:
		assert.Equal(t, WatchOpChanged, ev.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to apply create event")
	}

	assert.Greater(t, store.Count(), 0)
	assert.Equal(t, store.Count(), vectors.Size())
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	p, store, _ := newPipeline(t)
	path := filepath.Join(dir, "gone.go")
	writeFile(t, dir, "gone.go", "package a\n\nfunc Bar() int {\n\treturn 2\n}\n")

	_, err := p.Index(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Greater(t, store.Count(), 0)

	applied := make(chan WatchEvent, 8)
	w, err := NewWatcher(p, dir, func(ev WatchEvent, err error) {
		require.NoError(t, err)
		applied <- ev
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	select {
	case ev := <-applied:
		assert.Equal(t, WatchOpRemoved, ev.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to apply remove event")
	}

	assert.Equal(t, 0, store.Count())
}
