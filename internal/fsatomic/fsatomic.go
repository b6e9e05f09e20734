// Package fsatomic writes whole JSON documents so that readers see either the
// previous or the next version, never a torn file.
package fsatomic

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultLockTimeout bounds WithLock when the caller's context has no deadline.
const DefaultLockTimeout = 5 * time.Second

// TempPath is the staging file used by SaveJSON.
func TempPath(path string) string { return path + ".tmp" }

// SaveJSON writes v as indented JSON to path: stage in path+".tmp", fsync,
// rename over path, fsync the parent. perm 0 means 0600. The temp file is
// removed on any failure. ctx is checked before the rename; a cancelled save
// leaves the previous document in place.
func SaveJSON(ctx context.Context, path string, v any, perm fs.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return SaveBytes(ctx, path, append(b, '\n'), perm)
}

// SaveBytes is SaveJSON for pre-encoded content.
func SaveBytes(ctx context.Context, path string, b []byte, perm fs.FileMode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if perm == 0 {
		perm = 0o600
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp := TempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(b); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return FsyncDir(dir)
}

func rename(from, to string) error {
	var err error
	for i := 0; i < 5; i++ {
		if err = os.Rename(from, to); err == nil {
			return nil
		}
		if runtime.GOOS != "windows" {
			return err
		}
		// destination in use on Windows; retry briefly
		time.Sleep(time.Duration(10*(i+1)) * time.Millisecond)
	}
	return err
}

// ReadFile returns the content of path and whether it exists. A leftover
// staging file from an interrupted save is never read.
func ReadFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// LoadJSON decodes path into v. exists is false when the file is missing.
// An empty file counts as existing and leaves v untouched.
func LoadJSON(path string, v any) (exists bool, err error) {
	data, ok, err := ReadFile(path)
	if err != nil || !ok {
		return ok, err
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveStaleTemp deletes path+".tmp" when it is older than maxAge and
// reports whether something was removed. Callers must hold the lock for path.
func RemoveStaleTemp(path string, maxAge time.Duration) (bool, error) {
	tmp := TempPath(path)
	fi, err := os.Stat(tmp)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if time.Since(fi.ModTime()) < maxAge {
		return false, nil
	}
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, nil
}

// WithLock runs fn while holding an exclusive advisory lock on path+".lock".
// The lock is not re-entrant; do not nest WithLock for the same path.
func WithLock(ctx context.Context, path string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultLockTimeout)
		defer cancel()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	unlock, err := lockFile(ctx, path+".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// FsyncDir persists directory metadata; no-op on Windows.
func FsyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
