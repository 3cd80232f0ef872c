package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
)

// LockFile is the name of the lock held in the output directory while a
// build writes to it.
const LockFile = ".mina.lock"

// ErrLocked is returned when another build holds the output directory.
var ErrLocked = errors.New("output directory is locked by another build")

// maxWriters bounds the number of concurrent asset writes.
const maxWriters = 8

// lockOutput takes the output directory lock without waiting.
func lockOutput(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}
	return lock, nil
}

// writeAssets writes every asset of comp below dir.
func writeAssets(ctx context.Context, dir string, comp *Compilation) (err error) {
	lock, err := lockOutput(dir)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("releasing output lock: %w", uerr)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWriters)
	for _, name := range comp.AssetNames() {
		data, _ := comp.Asset(name)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeAsset(dir, name, data)
		})
	}
	return g.Wait()
}

func writeAsset(dir, name string, data []byte) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("writing %s: asset path escapes the output directory", name)
	}
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
