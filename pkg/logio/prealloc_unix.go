//go:build linux

/*
Copyright 2024 The Redo Log Engine Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for the handle's underlying file
// without writing zeros through the page cache, the way a spare log file
// is prepared ahead of need (spec.md §4.4 step 8). Falls back silently to
// a no-op on filesystems that reject fallocate (e.g. some network
// mounts); callers still zero-fill the header blocks themselves.
func (h *Handle) Preallocate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := unix.Fallocate(int(h.f.Fd()), 0, 0, size); err != nil {
		if err == unix.ENOSYS || err == unix.EOPNOTSUPP {
			return nil
		}
		return fmt.Errorf("logio: fallocate %q to %d: %w", h.path, size, err)
	}
	h.modified = true
	return nil
}
