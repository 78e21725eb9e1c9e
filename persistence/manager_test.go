package persistence

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gradtape/blobstore"
)

// memorySnapshot is a Snapshotable/Loadable backed by a byte slice.
type memorySnapshot struct {
	data []byte
	err  error
}

func (s *memorySnapshot) Save(_ context.Context, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write(s.data)
	return err
}

func (s *memorySnapshot) Load(_ context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

func TestManager_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	pm, err := NewManager(ManagerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	defer pm.Close()

	src := &memorySnapshot{data: []byte("tape state")}
	require.NoError(t, pm.Save(ctx, "tape.snap", src))

	dst := &memorySnapshot{}
	require.NoError(t, pm.Load(ctx, "tape.snap", dst))
	assert.Equal(t, "tape state", string(dst.data))
}

func TestManager_SaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pm, err := NewManager(ManagerOptions{Dir: dir})
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Save(ctx, "tape.snap", &memorySnapshot{data: []byte("good")}))

	// A failing save must leave the previous snapshot untouched and no
	// temp files behind.
	failed := &memorySnapshot{err: errors.New("boom")}
	require.Error(t, pm.Save(ctx, "tape.snap", failed))

	dst := &memorySnapshot{}
	require.NoError(t, pm.Load(ctx, "tape.snap", dst))
	assert.Equal(t, "good", string(dst.data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestManager_SaveAll(t *testing.T) {
	ctx := context.Background()
	pm, err := NewManager(ManagerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	defer pm.Close()

	sources := map[string]Snapshotable{
		"a.snap": &memorySnapshot{data: []byte("a")},
		"b.snap": &memorySnapshot{data: []byte("b")},
		"c.snap": &memorySnapshot{data: []byte("c")},
	}
	require.NoError(t, pm.SaveAll(ctx, sources))

	names, err := pm.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.snap", "b.snap", "c.snap"}, names)
}

func TestManager_SaveAllPropagatesError(t *testing.T) {
	ctx := context.Background()
	pm, err := NewManager(ManagerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	defer pm.Close()

	sources := map[string]Snapshotable{
		"ok.snap":  &memorySnapshot{data: []byte("ok")},
		"bad.snap": &memorySnapshot{err: errors.New("boom")},
	}
	assert.Error(t, pm.SaveAll(ctx, sources))
}

func TestManager_UploadDownload(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	pm, err := NewManager(ManagerOptions{Dir: t.TempDir(), BlobStore: store})
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Save(ctx, "tape.snap", &memorySnapshot{data: []byte("payload")}))
	require.NoError(t, pm.Upload(ctx, "tape.snap"))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tape.snap"}, names)

	// A second manager pulls the snapshot down and loads it.
	pm2, err := NewManager(ManagerOptions{Dir: t.TempDir(), BlobStore: store})
	require.NoError(t, err)
	defer pm2.Close()

	require.NoError(t, pm2.Download(ctx, "tape.snap"))
	dst := &memorySnapshot{}
	require.NoError(t, pm2.Load(ctx, "tape.snap", dst))
	assert.Equal(t, "payload", string(dst.data))
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "tape.snap", []byte("remote state")))

	pm, err := NewManager(ManagerOptions{Dir: t.TempDir(), BlobStore: store})
	require.NoError(t, err)
	defer pm.Close()

	dst := &memorySnapshot{}
	require.NoError(t, pm.Restore(ctx, "tape.snap", dst))
	assert.Equal(t, "remote state", string(dst.data))

	// Restore bypasses the local directory.
	names, err := pm.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestManager_NoBlobStore(t *testing.T) {
	ctx := context.Background()
	pm, err := NewManager(ManagerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	defer pm.Close()

	assert.ErrorIs(t, pm.Upload(ctx, "x"), ErrNoBlobStore)
	assert.ErrorIs(t, pm.Download(ctx, "x"), ErrNoBlobStore)
	assert.ErrorIs(t, pm.Restore(ctx, "x", &memorySnapshot{}), ErrNoBlobStore)
}

func TestManager_Remove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pm, err := NewManager(ManagerOptions{Dir: dir})
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Save(ctx, "tape.snap", &memorySnapshot{data: []byte("x")}))
	require.NoError(t, pm.Remove("tape.snap"))

	_, err = os.Stat(filepath.Join(dir, "tape.snap"))
	assert.True(t, os.IsNotExist(err))

	// Removing a missing snapshot is not an error.
	assert.NoError(t, pm.Remove("tape.snap"))
}

func TestManager_Closed(t *testing.T) {
	ctx := context.Background()
	pm, err := NewManager(ManagerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Save(ctx, "x", &memorySnapshot{}), ErrManagerClosed)
	assert.ErrorIs(t, pm.Load(ctx, "x", &memorySnapshot{}), ErrManagerClosed)
	_, err = pm.List()
	assert.ErrorIs(t, err, ErrManagerClosed)
}
