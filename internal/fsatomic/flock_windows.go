//go:build windows

package fsatomic

import (
	"context"
	"errors"
	"os"
	"time"
)

// lockFile approximates an exclusive lock with create-excl of lockPath and
// removes the file on release.
func lockFile(ctx context.Context, lockPath string) (func(), error) {
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err == nil {
			released := false
			return func() {
				if released {
					return
				}
				_ = f.Close()
				_ = os.Remove(lockPath)
				released = true
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}
