// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package sourcemap

import (
	"fmt"
	"os"
)

// Windows has no flock; holding the file handle open is the only
// coordination. The atomic rename on the write path still prevents
// readers from observing partial files, so the accepted race window is
// limited to two writers racing the rename with identical content.
func acquireLock(path string, exclusive bool) (*os.File, error) {
	lf, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %q: %w", path, err)
	}
	return lf, nil
}

func releaseLock(lf *os.File) {
	_ = lf.Close()
}
