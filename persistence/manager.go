// Package persistence coordinates durable storage of tape snapshots.
//
// The Manager writes snapshots atomically to the local file system via a
// temp-file rename, mirrors them to an optional blob store, and bounds
// concurrent snapshot jobs through a shared resource controller.
package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/gradtape/blobstore"
	"github.com/hupe1980/gradtape/resource"
)

var (
	// ErrManagerClosed is returned when operations are attempted on a closed manager.
	ErrManagerClosed = errors.New("persistence manager is closed")

	// ErrNoBlobStore is returned when blob operations are attempted without a store configured.
	ErrNoBlobStore = errors.New("blob store not configured")
)

// Snapshotable represents a component that can write its state to a snapshot.
type Snapshotable interface {
	// Save writes the component state to w.
	// The context allows cancellation of long-running snapshot operations.
	Save(ctx context.Context, w io.Writer) error
}

// Loadable represents a component that can restore its state from a snapshot.
type Loadable interface {
	// Load replaces the component state with the snapshot read from r.
	Load(ctx context.Context, r io.Reader) error
}

// ManagerOptions configures the persistence manager.
type ManagerOptions struct {
	// Dir is the directory for local snapshot files. Required.
	Dir string

	// BlobStore mirrors snapshots to remote storage (optional).
	BlobStore blobstore.BlobStore

	// Controller bounds concurrent snapshot jobs (optional).
	Controller *resource.Controller
}

// Manager coordinates snapshot persistence for one or more tapes.
//
// The Manager is thread-safe and can be used concurrently.
type Manager struct {
	dir        string
	store      blobstore.BlobStore
	controller *resource.Controller

	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new persistence manager, creating the snapshot
// directory if needed.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("persistence: create snapshot dir: %w", err)
	}

	return &Manager{
		dir:        opts.Dir,
		store:      opts.BlobStore,
		controller: opts.Controller,
	}, nil
}

// Dir returns the local snapshot directory.
func (pm *Manager) Dir() string {
	return pm.dir
}

func (pm *Manager) checkOpen() error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrManagerClosed
	}
	return nil
}

// Save writes a named snapshot atomically to the local directory.
//
// The snapshot is written to a temporary file first, then renamed to the
// final path, so readers never observe a partial snapshot.
func (pm *Manager) Save(ctx context.Context, name string, src Snapshotable) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := pm.controller.AcquireJob(ctx); err != nil {
		return err
	}
	defer pm.controller.ReleaseJob()

	path := filepath.Join(pm.dir, name)

	tmp, err := os.CreateTemp(pm.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}

	if err := src.Save(ctx, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persistence: snapshot %s failed: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persistence: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persistence: close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persistence: rename %s: %w", name, err)
	}

	// Best-effort: fsync directory
	if d, err := os.Open(pm.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// SaveAll writes multiple named snapshots concurrently. Each snapshot is
// individually atomic; job concurrency is bounded by the controller. On
// error, snapshots already renamed into place remain.
func (pm *Manager) SaveAll(ctx context.Context, sources map[string]Snapshotable) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for name, src := range sources {
		g.Go(func() error {
			return pm.Save(ctx, name, src)
		})
	}
	return g.Wait()
}

// Load restores a named snapshot from the local directory into dst.
func (pm *Manager) Load(ctx context.Context, name string, dst Loadable) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(pm.dir, name))
	if err != nil {
		return fmt.Errorf("persistence: open snapshot %s: %w", name, err)
	}
	defer f.Close()

	if err := dst.Load(ctx, f); err != nil {
		return fmt.Errorf("persistence: load %s: %w", name, err)
	}
	return nil
}

// Upload copies a local snapshot to the configured blob store.
func (pm *Manager) Upload(ctx context.Context, name string) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}
	if pm.store == nil {
		return ErrNoBlobStore
	}

	data, err := os.ReadFile(filepath.Join(pm.dir, name))
	if err != nil {
		return fmt.Errorf("persistence: read snapshot %s: %w", name, err)
	}

	if err := pm.store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("persistence: upload %s: %w", name, err)
	}
	return nil
}

// Download fetches a snapshot from the blob store into the local directory,
// replacing any local copy atomically.
func (pm *Manager) Download(ctx context.Context, name string) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}
	if pm.store == nil {
		return ErrNoBlobStore
	}

	blob, err := pm.store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("persistence: open remote %s: %w", name, err)
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := io.ReadFull(io.NewSectionReader(blob, 0, blob.Size()), data); err != nil {
		return fmt.Errorf("persistence: read remote %s: %w", name, err)
	}

	return pm.Save(ctx, name, rawSnapshot(data))
}

// Restore downloads a snapshot from the blob store and loads it into dst
// without touching the local directory.
func (pm *Manager) Restore(ctx context.Context, name string, dst Loadable) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}
	if pm.store == nil {
		return ErrNoBlobStore
	}

	blob, err := pm.store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("persistence: open remote %s: %w", name, err)
	}
	defer blob.Close()

	r := io.NewSectionReader(blob, 0, blob.Size())
	if err := dst.Load(ctx, r); err != nil {
		return fmt.Errorf("persistence: restore %s: %w", name, err)
	}
	return nil
}

// List returns the names of all local snapshots, sorted.
func (pm *Manager) List() ([]string, error) {
	if err := pm.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(pm.dir)
	if err != nil {
		return nil, fmt.Errorf("persistence: list snapshots: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Remove deletes a local snapshot. Removing a missing snapshot is not an error.
func (pm *Manager) Remove(name string) error {
	if err := pm.checkOpen(); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(pm.dir, name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close shuts down the persistence manager. Further operations return
// ErrManagerClosed.
func (pm *Manager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.closed = true
	return nil
}

// rawSnapshot adapts an already-serialized snapshot body to Snapshotable.
type rawSnapshot []byte

func (s rawSnapshot) Save(_ context.Context, w io.Writer) error {
	_, err := io.Copy(w, bytes.NewReader(s))
	return err
}
