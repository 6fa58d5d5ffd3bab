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

	"github.com/antflydb/hatchery/lib/glue"
	"github.com/antflydb/hatchery/lib/tokenizer"
)

const (
	startToken = "[START]"
	endToken   = "[EOD]"
)

// TranslationConverter produces text-to-text records: a prefixed source
// sequence with a bidirectional mask and a shifted target with a causal mask.
type TranslationConverter struct {
	truncationCounter

	tok    tokenizer.Tokenizer
	task   glue.TaskSpec
	prefix string
	src    int
	tgt    int
	schema Schema
}

// NewTranslation creates a translation converter with S = opts.SrcSeqLength
// and T = opts.TgtSeqLength.
func NewTranslation(tok tokenizer.Tokenizer, opts Options) (*TranslationConverter, error) {
	s, t := opts.SrcSeqLength, opts.TgtSeqLength
	if s < 1 || t < 1 {
		return nil, fmt.Errorf("source and target lengths must be positive, got %d and %d", s, t)
	}
	return &TranslationConverter{
		tok:    tok,
		task:   opts.Task,
		prefix: opts.prefix(),
		src:    s,
		tgt:    t,
		schema: Schema{
			{Name: "source_eos_ids", DType: Int32, Shape: []int{s}},
			{Name: "source_eos_mask", DType: Int32, Shape: []int{s, s}},
			{Name: "target_sos_ids", DType: Int32, Shape: []int{t}},
			{Name: "target_sos_mask", DType: Int32, Shape: []int{t, t}},
			{Name: "target_eos_ids", DType: Int32, Shape: []int{t}},
			{Name: "target_eos_mask", DType: Int32, Shape: []int{t}},
		},
	}, nil
}

func (c *TranslationConverter) Format() Format { return Translation }

func (c *TranslationConverter) Schema() Schema { return c.schema }

// Convert tokenizes the prefixed text_a as source and the label, framed by
// [START] and [EOD], as target. text_b is not used.
func (c *TranslationConverter) Convert(ex glue.Example) (Record, error) {
	s, t := c.src, c.tgt
	if ex.IsPadding() {
		return Record{
			"source_eos_ids":  Int32Tensor(make([]int32, s)),
			"source_eos_mask": Int32Tensor(make([]int32, s*s), s, s),
			"target_sos_ids":  Int32Tensor(make([]int32, t)),
			"target_sos_mask": Int32Tensor(make([]int32, t*t), t, t),
			"target_eos_ids":  Int32Tensor(make([]int32, t)),
			"target_eos_mask": Int32Tensor(make([]int32, t)),
		}, nil
	}

	label, err := labelText(c.task, ex.Label)
	if err != nil {
		return nil, err
	}

	source, err := c.tok.Tokenize(c.prefix + ex.TextA)
	if err != nil {
		return nil, fmt.Errorf("tokenizing source of %s: %w", ex.ID, err)
	}
	truncated := len(source) > s
	if truncated {
		source = source[:s]
	}

	target, err := c.tok.Tokenize(startToken + " " + label + " " + endToken)
	if err != nil {
		return nil, fmt.Errorf("tokenizing target of %s: %w", ex.ID, err)
	}
	targetIDs, err := convertIDs(c.tok, target)
	if err != nil {
		return nil, err
	}
	c.mark(truncated || len(targetIDs) > t+1)
	shifted := fitInt32(targetIDs, t+1)

	sourceIDs, err := convertIDs(c.tok, source)
	if err != nil {
		return nil, err
	}
	srcIDs := fitInt32(sourceIDs, s)

	sos := shifted[:t]
	eos := shifted[1:]
	eosMask := make([]int32, t)
	for i := range eosMask {
		eosMask[i] = 1
	}

	return Record{
		"source_eos_ids":  Int32Tensor(srcIDs),
		"source_eos_mask": Int32Tensor(bidirectionalMask(srcIDs), s, s),
		"target_sos_ids":  Int32Tensor(sos),
		"target_sos_mask": Int32Tensor(causalMask(sos), t, t),
		"target_eos_ids":  Int32Tensor(eos),
		"target_eos_mask": Int32Tensor(eosMask),
	}, nil
}
