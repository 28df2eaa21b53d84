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

package main

import (
	"fmt"
	"path/filepath"

	"github.com/redologengine/redolog/pkg/jsonconfig"
	"github.com/redologengine/redolog/pkg/logconfig"
	"github.com/redologengine/redolog/pkg/redolog"
)

// openEngine resolves dir into a Config and opens the engine on it. If
// dir has a redologctl.json alongside it, that file's contents are used
// as the config object (minus "dir", which is always overridden to
// dir); otherwise the built-in defaults apply.
func openEngine(dir string) (*redolog.Engine, error) {
	if dir == "" {
		return nil, fmt.Errorf("-dir is required")
	}

	obj := jsonconfig.Obj{}
	confPath := filepath.Join(dir, "redologctl.json")
	if loaded, err := jsonconfig.ReadFile(confPath); err == nil {
		obj = loaded
	}
	obj["dir"] = dir

	cfg, err := logconfig.Load(obj)
	if err != nil {
		return nil, fmt.Errorf("loading config: %v", err)
	}
	return redolog.Open(cfg)
}
