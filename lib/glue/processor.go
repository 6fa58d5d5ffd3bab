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
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Processor turns a task's raw files into examples.
type Processor interface {
	Name() string
	Labels() []string
	Examples(dir string, split Split) ([]Example, error)
}

// TaskProcessor parses files according to a TaskSpec.
type TaskProcessor struct {
	spec       TaskSpec
	normalizer TextNormalizer
	logger     *zap.Logger
}

var _ Processor = (*TaskProcessor)(nil)

// NewProcessor returns the processor for a registered task.
func NewProcessor(task string, normalizer TextNormalizer, logger *zap.Logger) (*TaskProcessor, error) {
	spec, err := LookupTask(task)
	if err != nil {
		return nil, err
	}
	return NewProcessorFromSpec(spec, normalizer, logger), nil
}

// NewProcessorFromSpec returns a processor for spec without registering it.
func NewProcessorFromSpec(spec TaskSpec, normalizer TextNormalizer, logger *zap.Logger) *TaskProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskProcessor{spec: spec, normalizer: normalizer, logger: logger}
}

func (p *TaskProcessor) Name() string { return p.spec.Name }

func (p *TaskProcessor) Labels() []string { return p.spec.Labels }

// Spec returns the task definition.
func (p *TaskProcessor) Spec() TaskSpec { return p.spec }

// Path returns the file read for split under dir.
func (p *TaskProcessor) Path(dir string, split Split) (string, error) {
	s, ok := p.spec.Splits[split]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s split", ErrSplitUnsupported, p.spec.Name, split)
	}
	return filepath.Join(dir, p.spec.Dir, s.File), nil
}

// Examples reads and parses split from dir.
func (p *TaskProcessor) Examples(dir string, split Split) ([]Example, error) {
	path, err := p.Path(dir, split)
	if err != nil {
		return nil, err
	}
	rows, err := readTSV(path)
	if err != nil {
		return nil, err
	}
	return p.parseRows(path, split, rows)
}

func (p *TaskProcessor) parseRows(path string, split Split, rows [][]string) ([]Example, error) {
	s := p.spec.Splits[split]
	need := s.need()
	norm := p.normalizer.Normalize

	examples := make([]Example, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if s.Header && i == 0 {
			continue
		}
		if len(row) < need {
			if s.SkipShortRows {
				skipped++
				continue
			}
			return nil, &RowTooShortError{File: path, Line: i + 1, Need: need, Got: len(row)}
		}

		ex := Example{TextA: norm(s.TextA.resolve(row))}
		if s.ID.Set {
			ex.ID = norm(s.ID.resolve(row))
		} else {
			ex.ID = fmt.Sprintf("%s-%d", split, i)
		}
		if s.TextB.Set {
			ex.TextB = norm(s.TextB.resolve(row))
		}

		raw := s.Placeholder
		if s.Label.Set {
			raw = s.Label.resolve(row)
		}
		if p.spec.FloatLabels {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, &LabelParseError{File: path, Line: i + 1, Value: raw, Err: err}
			}
			ex.Label = FloatLabel(v)
		} else if s.Label.Set {
			ex.Label = StringLabel(norm(raw))
		} else {
			ex.Label = StringLabel(raw)
		}
		examples = append(examples, ex)
	}

	if skipped > 0 {
		p.logger.Warn("Skipped rows with missing columns",
			zap.String("task", p.spec.Name),
			zap.String("file", path),
			zap.Int("skipped", skipped))
	}
	p.logger.Debug("Parsed examples",
		zap.String("task", p.spec.Name),
		zap.String("split", string(split)),
		zap.Int("examples", len(examples)))
	return examples, nil
}
