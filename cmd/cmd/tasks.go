// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/antflydb/hatchery/lib/features"
	"github.com/antflydb/hatchery/lib/glue"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task]",
	Short: "List supported tasks and record formats",
	Long: `List the GLUE tasks records can be built for, or show how one task's
files are read.

Examples:
  # List tasks
  hatchery tasks

  # Include tasks declared in a TOML file
  hatchery tasks --tasks-file my_tasks.toml

  # Show the layout of MRPC
  hatchery tasks mrpc`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)

	tasksCmd.Flags().String("tasks-file", "", "TOML file with extra task definitions")
}

func runTasks(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("tasks-file"); path != "" {
		if _, err := glue.RegisterTasksFile(path); err != nil {
			return err
		}
	}

	if len(args) == 1 {
		spec, err := glue.LookupTask(args[0])
		if err != nil {
			return err
		}
		printTask(spec)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tDIR\tLABELS\tSPLITS")
	for _, name := range glue.TaskNames() {
		spec, err := glue.LookupTask(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Name, spec.Dir, labelSummary(spec), strings.Join(splitList(spec), ","))
	}
	_ = w.Flush()

	fmt.Printf("\nFormats: %s\n", strings.Join(features.FormatNames(), ", "))
	return nil
}

func labelSummary(spec glue.TaskSpec) string {
	if spec.FloatLabels {
		return "(regression)"
	}
	return strings.Join(spec.Labels, ",")
}

func splitList(spec glue.TaskSpec) []string {
	var out []string
	for _, s := range []glue.Split{glue.Train, glue.Dev, glue.Test} {
		if _, ok := spec.Splits[s]; ok {
			out = append(out, string(s))
		}
	}
	return out
}

func printTask(spec glue.TaskSpec) {
	fmt.Printf("Task:   %s\n", spec.Name)
	fmt.Printf("Dir:    %s\n", spec.Dir)
	fmt.Printf("Labels: %s\n\n", labelSummary(spec))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SPLIT\tFILE\tHEADER\tID\tTEXT_A\tTEXT_B\tLABEL")
	for _, split := range splitList(spec) {
		s := spec.Splits[glue.Split(split)]
		label := column(s.Label)
		if !s.Label.Set {
			label = fmt.Sprintf("%q", s.Placeholder)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			split, s.File, s.Header, column(s.ID), column(s.TextA), column(s.TextB), label)
	}
	_ = w.Flush()
}

func column(c glue.Column) string {
	if !c.Set {
		return "-"
	}
	return fmt.Sprint(c.Index)
}
