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

package features

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/antflydb/hatchery/lib/glue"
	"github.com/antflydb/hatchery/lib/tokenizer"
)

// Format names a record layout.
type Format string

const (
	Classification Format = "classification"
	Translation    Format = "translation"
	Generative     Format = "generative"
)

// ErrUnsupportedFormat is returned for unknown format names.
var ErrUnsupportedFormat = errors.New("unsupported format")

var formatAliases = map[string]Format{
	"classification": Classification,
	"bert":           Classification,
	"translation":    Translation,
	"t5":             Translation,
	"generative":     Generative,
	"gpt":            Generative,
}

// ParseFormat resolves a format name or alias (bert, t5, gpt).
func ParseFormat(name string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// FormatNames returns accepted format names and aliases, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(formatAliases))
	for name := range formatAliases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Converter turns examples into records of a fixed Schema. Implementations
// are safe for concurrent use when their tokenizer is.
type Converter interface {
	Format() Format
	Schema() Schema
	Convert(ex glue.Example) (Record, error)
	// Truncations counts converted examples whose tokens were cut to fit.
	Truncations() uint64
}

// Options configures a converter.
type Options struct {
	Task glue.TaskSpec
	// MaxSeqLength is L for the classification and generative formats.
	MaxSeqLength int
	// SrcSeqLength and TgtSeqLength are S and T for the translation format.
	SrcSeqLength int
	TgtSeqLength int
	// Prefix is prepended to text_a by the text-to-text formats. Empty means
	// "{task} sentence: ".
	Prefix string
}

func (o Options) prefix() string {
	if o.Prefix != "" {
		return o.Prefix
	}
	return o.Task.Name + " sentence: "
}

// UnknownLabelError reports a label outside the task's label set.
type UnknownLabelError struct {
	Label string
	Known []string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("label %q not in %v", e.Label, e.Known)
}

type constructor func(tok tokenizer.Tokenizer, opts Options) (Converter, error)

var converters = map[Format]constructor{
	Classification: func(tok tokenizer.Tokenizer, opts Options) (Converter, error) {
		return NewClassification(tok, opts)
	},
	Translation: func(tok tokenizer.Tokenizer, opts Options) (Converter, error) {
		return NewTranslation(tok, opts)
	},
	Generative: func(tok tokenizer.Tokenizer, opts Options) (Converter, error) {
		return NewGenerative(tok, opts)
	},
}

// New builds the converter for format.
func New(format Format, tok tokenizer.Tokenizer, opts Options) (Converter, error) {
	ctor, ok := converters[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if tok == nil {
		return nil, errors.New("converter requires a tokenizer")
	}
	return ctor(tok, opts)
}

type truncationCounter struct {
	n atomic.Uint64
}

func (c *truncationCounter) Truncations() uint64 { return c.n.Load() }

func (c *truncationCounter) mark(truncated bool) {
	if truncated {
		c.n.Add(1)
	}
}

// labelText renders a label as words for the text-to-text formats.
func labelText(task glue.TaskSpec, label glue.Label) (string, error) {
	s := label.String()
	if len(task.TextLabels) == 0 {
		return s, nil
	}
	text, ok := task.TextLabels[s]
	if !ok {
		known := make([]string, 0, len(task.TextLabels))
		for k := range task.TextLabels {
			known = append(known, k)
		}
		slices.Sort(known)
		return "", &UnknownLabelError{Label: s, Known: known}
	}
	return text, nil
}

func convertIDs(tok tokenizer.Tokenizer, tokens []string) ([]int, error) {
	ids, err := tok.ConvertTokensToIDs(tokens)
	if err != nil {
		return nil, fmt.Errorf("converting tokens: %w", err)
	}
	if len(ids) != len(tokens) {
		return nil, fmt.Errorf("tokenizer returned %d ids for %d tokens", len(ids), len(tokens))
	}
	return ids, nil
}
