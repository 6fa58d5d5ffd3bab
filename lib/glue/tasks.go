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

package glue

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Split names a dataset partition.
type Split string

const (
	Train Split = "train"
	Dev   Split = "dev"
	Test  Split = "test"
)

// Column selects a TSV field. Negative indexes count from the end of the row.
// The zero Column is unset.
type Column struct {
	Index int
	Set   bool
}

// Col returns a set Column for index i.
func Col(i int) Column {
	return Column{Index: i, Set: true}
}

func (c Column) resolve(row []string) string {
	if c.Index < 0 {
		return row[len(row)+c.Index]
	}
	return row[c.Index]
}

func (c Column) width() int {
	if !c.Set {
		return 0
	}
	if c.Index < 0 {
		return -c.Index
	}
	return c.Index + 1
}

// SplitSpec describes how one split's file is laid out.
type SplitSpec struct {
	File   string
	Header bool
	// ID is unset when ids are synthesised as "{split}-{row}".
	ID    Column
	TextA Column
	TextB Column
	// Label is unset for splits without ground truth; Placeholder is used instead.
	Label       Column
	Placeholder string
	// SkipShortRows drops rows missing columns instead of failing.
	SkipShortRows bool
}

func (s SplitSpec) need() int {
	return max(s.ID.width(), s.TextA.width(), s.TextB.width(), s.Label.width())
}

// TaskSpec declares a GLUE task: where its files live and how rows map to
// examples.
type TaskSpec struct {
	Name string
	// Dir is the task's directory under the data root.
	Dir string
	// Labels is the ordered label set. Empty for regression tasks.
	Labels []string
	// FloatLabels marks a regression task.
	FloatLabels bool
	// TextLabels rewrites class labels into words for text-to-text formats.
	TextLabels map[string]string
	Splits     map[Split]SplitSpec
}

// Validate checks that every split reads at least text_a.
func (t TaskSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task has no name")
	}
	if len(t.Splits) == 0 {
		return fmt.Errorf("task %s declares no splits", t.Name)
	}
	for split, s := range t.Splits {
		if s.File == "" {
			return fmt.Errorf("task %s split %s has no file", t.Name, split)
		}
		if !s.TextA.Set {
			return fmt.Errorf("task %s split %s has no text_a column", t.Name, split)
		}
	}
	return nil
}

var (
	tasksMu sync.RWMutex
	tasks   = builtinTasks()
)

// RegisterTask adds or replaces a task definition.
func RegisterTask(spec TaskSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	spec.Name = strings.ToLower(spec.Name)

	tasksMu.Lock()
	defer tasksMu.Unlock()
	tasks[spec.Name] = spec
	return nil
}

// LookupTask returns the spec registered under name, case-insensitively.
func LookupTask(name string) (TaskSpec, error) {
	tasksMu.RLock()
	defer tasksMu.RUnlock()
	spec, ok := tasks[strings.ToLower(name)]
	if !ok {
		return TaskSpec{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return spec, nil
}

// TaskNames returns the registered task names in sorted order.
func TaskNames() []string {
	tasksMu.RLock()
	defer tasksMu.RUnlock()
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func pairSplits(train, dev, test string, placeholder string) map[Split]SplitSpec {
	labeled := func(file string) SplitSpec {
		return SplitSpec{File: file, Header: true, ID: Col(0), TextA: Col(1), TextB: Col(2), Label: Col(-1)}
	}
	return map[Split]SplitSpec{
		Train: labeled(train),
		Dev:   labeled(dev),
		Test:  {File: test, Header: true, ID: Col(0), TextA: Col(1), TextB: Col(2), Placeholder: placeholder},
	}
}

func mnliSplits(dev, test string) map[Split]SplitSpec {
	labeled := func(file string) SplitSpec {
		return SplitSpec{File: file, Header: true, ID: Col(0), TextA: Col(8), TextB: Col(9), Label: Col(-1)}
	}
	return map[Split]SplitSpec{
		Train: labeled("train.tsv"),
		Dev:   labeled(dev),
		Test:  {File: test, Header: true, ID: Col(0), TextA: Col(8), TextB: Col(9), Placeholder: "contradiction"},
	}
}

func builtinTasks() map[string]TaskSpec {
	binary := []string{"0", "1"}
	nli := []string{"contradiction", "entailment", "neutral"}
	entail := []string{"entailment", "not_entailment"}

	specs := []TaskSpec{
		{
			Name:       "cola",
			Dir:        "CoLA",
			Labels:     binary,
			TextLabels: map[string]string{"0": "negative", "1": "positive"},
			Splits: map[Split]SplitSpec{
				Train: {File: "train.tsv", TextA: Col(3), Label: Col(1)},
				Dev:   {File: "dev.tsv", TextA: Col(3), Label: Col(1)},
				Test:  {File: "test.tsv", Header: true, ID: Col(0), TextA: Col(1), Placeholder: "0"},
			},
		},
		{Name: "mnli", Dir: "MNLI", Labels: nli, Splits: mnliSplits("dev_matched.tsv", "test_matched.tsv")},
		{Name: "mismnli", Dir: "MNLI", Labels: nli, Splits: mnliSplits("dev_mismatched.tsv", "test_mismatched.tsv")},
		{
			Name:   "mrpc",
			Dir:    "MRPC",
			Labels: binary,
			Splits: map[Split]SplitSpec{
				Train: {File: "train.tsv", Header: true, TextA: Col(3), TextB: Col(4), Label: Col(0)},
				Dev:   {File: "dev.tsv", Header: true, TextA: Col(3), TextB: Col(4), Label: Col(0)},
				Test:  {File: "test.tsv", Header: true, ID: Col(0), TextA: Col(3), TextB: Col(4), Placeholder: "0"},
			},
		},
		{
			Name:   "sst-2",
			Dir:    "SST-2",
			Labels: binary,
			Splits: map[Split]SplitSpec{
				Train: {File: "train.tsv", Header: true, TextA: Col(0), Label: Col(1)},
				Dev:   {File: "dev.tsv", Header: true, TextA: Col(0), Label: Col(1)},
				Test:  {File: "test.tsv", Header: true, ID: Col(0), TextA: Col(1), Placeholder: "0"},
			},
		},
		{
			Name:        "sts-b",
			Dir:         "STS-B",
			FloatLabels: true,
			Splits: map[Split]SplitSpec{
				Train: {File: "train.tsv", Header: true, ID: Col(0), TextA: Col(7), TextB: Col(8), Label: Col(-1)},
				Dev:   {File: "dev.tsv", Header: true, ID: Col(0), TextA: Col(7), TextB: Col(8), Label: Col(-1)},
				Test:  {File: "test.tsv", Header: true, ID: Col(0), TextA: Col(7), TextB: Col(8), Placeholder: "0"},
			},
		},
		{
			Name:   "qqp",
			Dir:    "QQP",
			Labels: binary,
			Splits: map[Split]SplitSpec{
				Train: {File: "train.tsv", Header: true, ID: Col(0), TextA: Col(3), TextB: Col(4), Label: Col(5), SkipShortRows: true},
				Dev:   {File: "dev.tsv", Header: true, ID: Col(0), TextA: Col(3), TextB: Col(4), Label: Col(5), SkipShortRows: true},
				Test:  {File: "test.tsv", Header: true, ID: Col(0), TextA: Col(1), TextB: Col(2), Placeholder: "0"},
			},
		},
		{Name: "qnli", Dir: "QNLI", Labels: entail, Splits: pairSplits("train.tsv", "dev.tsv", "test.tsv", "entailment")},
		{Name: "rte", Dir: "RTE", Labels: entail, Splits: pairSplits("train.tsv", "dev.tsv", "test.tsv", "entailment")},
		{Name: "wnli", Dir: "WNLI", Labels: binary, Splits: pairSplits("train.tsv", "dev.tsv", "test.tsv", "0")},
		{
			Name:   "ax",
			Dir:    "diagnostic",
			Labels: nli,
			Splits: map[Split]SplitSpec{
				Test: {File: "diagnostic.tsv", Header: true, ID: Col(0), TextA: Col(1), TextB: Col(2), Placeholder: "contradiction"},
			},
		},
	}

	m := make(map[string]TaskSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}
