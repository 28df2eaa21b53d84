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
	"text/tabwriter"

	"github.com/redologengine/redolog/pkg/cmdmain"
)

type filesCmd struct {
	dir string
}

func init() {
	cmdmain.RegisterCommand("files", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(filesCmd)
		flags.StringVar(&cmd.dir, "dir", "", dirFlagHelp)
		return cmd
	})
}

func (c *filesCmd) Describe() string {
	return "List the files in a redo log's file dictionary."
}

func (c *filesCmd) Usage() {
	fmt.Fprintf(os.Stderr, "redologctl files -dir <dir>\n")
}

func (c *filesCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("files takes no arguments")
	}
	e, err := openEngine(c.dir)
	if err != nil {
		return err
	}
	defer e.Close()

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART_LSN\tSIZE_BYTES\tFULL\tCONSUMED")
	for _, f := range e.Files() {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%v\t%v\n", f.ID, f.StartLSN, f.SizeBytes, f.Full, f.Consumed)
	}
	return tw.Flush()
}
