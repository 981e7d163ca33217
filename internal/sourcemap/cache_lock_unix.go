// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package sourcemap

import (
	"fmt"
	"os"
	"syscall"
)

// acquireLock opens (or creates) the advisory lock file and applies a
// blocking flock: LOCK_EX when exclusive, LOCK_SH otherwise. The
// returned file must be passed to releaseLock when the critical section
// ends. Lock files are never deleted; they are zero-length and cheap.
func acquireLock(path string, exclusive bool) (*os.File, error) {
	lf, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %q: %w", path, err)
	}

	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	if err := syscall.Flock(int(lf.Fd()), how); err != nil {
		_ = lf.Close()
		return nil, fmt.Errorf("flock failed on %q: %w", path, err)
	}
	return lf, nil
}

func releaseLock(lf *os.File) {
	_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
	_ = lf.Close()
}
