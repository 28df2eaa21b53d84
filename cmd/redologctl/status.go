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
	"flag"
	"fmt"
	"os"

	"github.com/redologengine/redolog/pkg/cmdmain"
)

type statusCmd struct {
	dir string
}

func init() {
	cmdmain.RegisterCommand("status", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(statusCmd)
		flags.StringVar(&cmd.dir, "dir", "", dirFlagHelp)
		return cmd
	})
}

func (c *statusCmd) Describe() string {
	return "Print the current LSN, checkpoint, and capacity state of a redo log."
}

func (c *statusCmd) Usage() {
	fmt.Fprintf(os.Stderr, "redologctl status -dir <dir>\n")
}

func (c *statusCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("status takes no arguments")
	}
	e, err := openEngine(c.dir)
	if err != nil {
		return err
	}
	defer e.Close()

	limits := e.Limits()
	fmt.Printf("dir:                 %s\n", e.Dir())
	fmt.Printf("write_lsn:           %d\n", e.WriteLSN())
	fmt.Printf("flushed_to_disk_lsn: %d\n", e.FlushedLSN())
	fmt.Printf("checkpoint_lsn:      %d\n", e.LastCheckpointLSN())
	fmt.Printf("oldest_needed_lsn:   %d\n", e.OldestNeededLSN())
	fmt.Printf("spare_files:         %d\n", e.SpareCount())
	fmt.Println()
	fmt.Printf("physical_capacity:        %d\n", limits.PhysicalCapacity)
	fmt.Printf("soft_logical_capacity:    %d\n", limits.SoftLogicalCapacity)
	fmt.Printf("hard_logical_capacity:    %d\n", limits.HardLogicalCapacity)
	fmt.Printf("adaptive_flush_min_age:   %d\n", limits.AdaptiveFlushMinAge)
	fmt.Printf("adaptive_flush_max_age:   %d\n", limits.AdaptiveFlushMaxAge)
	fmt.Printf("aggressive_checkpoint_min_age: %d\n", limits.AggressiveCheckpointMinAge)
	fmt.Printf("next_file_size:           %d\n", limits.NextFileSize)
	fmt.Printf("resize_mode:              %v\n", limits.ResizeMode)
	return nil
}
