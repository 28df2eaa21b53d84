//go:build !linux

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

// Preallocate falls back to a plain truncate-based extension on
// platforms without fallocate; the zero-fill still happens via the
// normal write path.
func (h *Handle) Preallocate(size int64) error {
	return h.Truncate(size)
}
