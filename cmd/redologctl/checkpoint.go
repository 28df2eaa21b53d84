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
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redologengine/redolog/pkg/cmdmain"
)

type checkpointCmd struct {
	dir     string
	timeout time.Duration
}

func init() {
	cmdmain.RegisterCommand("checkpoint", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(checkpointCmd)
		flags.StringVar(&cmd.dir, "dir", "", dirFlagHelp)
		flags.DurationVar(&cmd.timeout, "timeout", 5*time.Second, "How long to wait for the checkpoint to land before giving up.")
		return cmd
	})
}

func (c *checkpointCmd) Describe() string {
	return "Force an out-of-cycle checkpoint and wait for it to be durable."
}

func (c *checkpointCmd) Usage() {
	fmt.Fprintf(os.Stderr, "redologctl checkpoint -dir <dir>\n")
}

func (c *checkpointCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("checkpoint takes no arguments")
	}
	e, err := openEngine(c.dir)
	if err != nil {
		return err
	}
	defer e.Close()

	e.Start()
	defer e.Stop()

	target := e.FlushedLSN()
	e.RequestCheckpoint()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	for e.LastCheckpointLSN() < target {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for checkpoint to reach lsn %d (at %d)", target, e.LastCheckpointLSN())
		case <-time.After(10 * time.Millisecond):
		}
	}

	fmt.Printf("checkpoint_lsn now %d\n", e.LastCheckpointLSN())
	return nil
}
