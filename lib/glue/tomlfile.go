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
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// tasksFile is the TOML layout for extra task definitions:
//
//	[[task]]
//	name = "boolq"
//	dir = "BoolQ"
//	labels = ["False", "True"]
//
//	[task.splits.train]
//	file = "train.tsv"
//	header = true
//	text_a = 1
//	text_b = 2
//	label = -1
type tasksFile struct {
	Task []taskDef `toml:"task"`
}

type taskDef struct {
	Name        string              `toml:"name"`
	Dir         string              `toml:"dir"`
	Labels      []string            `toml:"labels"`
	FloatLabels bool                `toml:"float_labels"`
	TextLabels  map[string]string   `toml:"text_labels"`
	Splits      map[string]splitDef `toml:"splits"`
}

type splitDef struct {
	File          string `toml:"file"`
	Header        bool   `toml:"header"`
	ID            *int   `toml:"id"`
	TextA         *int   `toml:"text_a"`
	TextB         *int   `toml:"text_b"`
	Label         *int   `toml:"label"`
	Placeholder   string `toml:"placeholder"`
	SkipShortRows bool   `toml:"skip_short_rows"`
}

func optCol(i *int) Column {
	if i == nil {
		return Column{}
	}
	return Col(*i)
}

// ParseTasks decodes TOML task definitions.
func ParseTasks(content string) ([]TaskSpec, error) {
	var f tasksFile
	md, err := toml.Decode(content, &f)
	if err != nil {
		return nil, fmt.Errorf("decoding tasks: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in tasks file: %s", strings.Join(keys, ", "))
	}

	specs := make([]TaskSpec, 0, len(f.Task))
	for _, def := range f.Task {
		spec := TaskSpec{
			Name:        def.Name,
			Dir:         def.Dir,
			Labels:      def.Labels,
			FloatLabels: def.FloatLabels,
			TextLabels:  def.TextLabels,
			Splits:      make(map[Split]SplitSpec, len(def.Splits)),
		}
		for name, s := range def.Splits {
			split := Split(name)
			if split != Train && split != Dev && split != Test {
				return nil, fmt.Errorf("task %s: unknown split %q", def.Name, name)
			}
			spec.Splits[split] = SplitSpec{
				File:          s.File,
				Header:        s.Header,
				ID:            optCol(s.ID),
				TextA:         optCol(s.TextA),
				TextB:         optCol(s.TextB),
				Label:         optCol(s.Label),
				Placeholder:   s.Placeholder,
				SkipShortRows: s.SkipShortRows,
			}
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RegisterTasksFile registers every task defined in the TOML file at path
// and returns their names.
func RegisterTasksFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks file: %w", err)
	}
	specs, err := ParseTasks(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := RegisterTask(spec); err != nil {
			return nil, err
		}
		names = append(names, strings.ToLower(spec.Name))
	}
	return names, nil
}
