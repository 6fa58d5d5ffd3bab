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
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// ClassificationConverter frames examples as [CLS] a [SEP] (b [SEP]) for
// BERT-style sequence classification.
type ClassificationConverter struct {
	truncationCounter

	tok      tokenizer.Tokenizer
	task     glue.TaskSpec
	length   int
	labelMap map[string]int64
	schema   Schema
}

// NewClassification creates a classification converter with L = opts.MaxSeqLength.
func NewClassification(tok tokenizer.Tokenizer, opts Options) (*ClassificationConverter, error) {
	if opts.MaxSeqLength < 3 {
		return nil, fmt.Errorf("max sequence length %d too small for classification framing", opts.MaxSeqLength)
	}
	labelMap := make(map[string]int64, len(opts.Task.Labels))
	for i, l := range opts.Task.Labels {
		labelMap[l] = int64(i)
	}
	l := opts.MaxSeqLength
	return &ClassificationConverter{
		tok:      tok,
		task:     opts.Task,
		length:   l,
		labelMap: labelMap,
		schema: Schema{
			{Name: "input_ids", DType: Int64, Shape: []int{l}},
			{Name: "input_mask", DType: Int64, Shape: []int{l}},
			{Name: "segment_ids", DType: Int64, Shape: []int{l}},
			{Name: "label_ids", DType: Int64, Shape: []int{1}},
			{Name: "is_real_example", DType: Int64, Shape: []int{1}},
		},
	}, nil
}

func (c *ClassificationConverter) Format() Format { return Classification }

func (c *ClassificationConverter) Schema() Schema { return c.schema }

// Convert tokenizes ex and lays it out in the classification record.
func (c *ClassificationConverter) Convert(ex glue.Example) (Record, error) {
	l := c.length
	if ex.IsPadding() {
		return Record{
			"input_ids":       Int64Tensor(make([]int64, l)),
			"input_mask":      Int64Tensor(make([]int64, l)),
			"segment_ids":     Int64Tensor(make([]int64, l)),
			"label_ids":       Int64Tensor([]int64{0}),
			"is_real_example": Int64Tensor([]int64{0}),
		}, nil
	}

	labelID, err := c.labelID(ex.Label)
	if err != nil {
		return nil, err
	}

	tokensA, err := c.tok.Tokenize(ex.TextA)
	if err != nil {
		return nil, fmt.Errorf("tokenizing text_a of %s: %w", ex.ID, err)
	}
	var tokensB []string
	if ex.HasTextB() {
		tokensB, err = c.tok.Tokenize(ex.TextB)
		if err != nil {
			return nil, fmt.Errorf("tokenizing text_b of %s: %w", ex.ID, err)
		}
	}

	before := len(tokensA) + len(tokensB)
	if len(tokensB) > 0 {
		tokensA, tokensB = TruncatePair(tokensA, tokensB, l-3)
	} else if len(tokensA) > l-2 {
		tokensA = tokensA[:l-2]
	}
	c.mark(len(tokensA)+len(tokensB) < before)

	tokens := make([]string, 0, l)
	segments := make([]int64, l)
	tokens = append(tokens, clsToken)
	tokens = append(tokens, tokensA...)
	tokens = append(tokens, sepToken)
	if len(tokensB) > 0 {
		tokens = append(tokens, tokensB...)
		tokens = append(tokens, sepToken)
		for i := len(tokensA) + 2; i < len(tokens); i++ {
			segments[i] = 1
		}
	}

	ids, err := convertIDs(c.tok, tokens)
	if err != nil {
		return nil, err
	}
	mask := make([]int64, l)
	for i := range ids {
		mask[i] = 1
	}

	return Record{
		"input_ids":       Int64Tensor(fitInt64(ids, l)),
		"input_mask":      Int64Tensor(mask),
		"segment_ids":     Int64Tensor(segments),
		"label_ids":       Int64Tensor([]int64{labelID}),
		"is_real_example": Int64Tensor([]int64{1}),
	}, nil
}

func (c *ClassificationConverter) labelID(label glue.Label) (int64, error) {
	if label.IsFloat() {
		return int64(label.Float()), nil
	}
	id, ok := c.labelMap[label.String()]
	if !ok {
		return 0, &UnknownLabelError{Label: label.String(), Known: c.task.Labels}
	}
	return id, nil
}
