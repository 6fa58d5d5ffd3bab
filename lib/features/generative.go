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
	"fmt"
	"slices"

	"github.com/antflydb/hatchery/lib/glue"
	"github.com/antflydb/hatchery/lib/tokenizer"
)

// GenerativeConverter produces a single input_ids sequence of the prefixed
// text_a followed by the label and [EOD], for decoder-only models.
type GenerativeConverter struct {
	truncationCounter

	tok    tokenizer.Tokenizer
	task   glue.TaskSpec
	prefix string
	length int
	schema Schema
}

// NewGenerative creates a generative converter with L = opts.MaxSeqLength.
func NewGenerative(tok tokenizer.Tokenizer, opts Options) (*GenerativeConverter, error) {
	if opts.MaxSeqLength < 1 {
		return nil, fmt.Errorf("max sequence length must be positive, got %d", opts.MaxSeqLength)
	}
	l := opts.MaxSeqLength
	return &GenerativeConverter{
		tok:    tok,
		task:   opts.Task,
		prefix: opts.prefix(),
		length: l,
		schema: Schema{
			{Name: "input_ids", DType: Int32, Shape: []int{l}},
		},
	}, nil
}

func (c *GenerativeConverter) Format() Format { return Generative }

func (c *GenerativeConverter) Schema() Schema { return c.schema }

// Convert tokenizes ex into prompt and answer tokens. The prompt alone is cut
// to L before the answer is appended, then the whole is cut or padded to L.
func (c *GenerativeConverter) Convert(ex glue.Example) (Record, error) {
	l := c.length
	if ex.IsPadding() {
		return Record{"input_ids": Int32Tensor(make([]int32, l))}, nil
	}

	label, err := labelText(c.task, ex.Label)
	if err != nil {
		return nil, err
	}

	prompt, err := c.tok.Tokenize(c.prefix + ex.TextA)
	if err != nil {
		return nil, fmt.Errorf("tokenizing prompt of %s: %w", ex.ID, err)
	}
	cut := len(prompt) > l
	if cut {
		prompt = prompt[:l]
	}
	answer, err := c.tok.Tokenize(label + " " + endToken)
	if err != nil {
		return nil, fmt.Errorf("tokenizing answer of %s: %w", ex.ID, err)
	}

	ids, err := convertIDs(c.tok, slices.Concat(prompt, answer))
	if err != nil {
		return nil, err
	}
	c.mark(cut || len(ids) > l)

	return Record{"input_ids": Int32Tensor(fitInt32(ids, l))}, nil
}
