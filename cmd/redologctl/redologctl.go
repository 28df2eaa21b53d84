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

// Command redologctl is an inspection and administration tool for a
// redo log directory: it reports LSN/capacity state, lists the file
// dictionary, and can force an out-of-cycle checkpoint, all without
// a running server attached to the log.
package main

import (
	"github.com/redologengine/redolog/pkg/cmdmain"
)

func main() {
	cmdmain.Main()
}

const dirFlagHelp = "Path to the redo log directory (the one containing #innodb_redo)."
