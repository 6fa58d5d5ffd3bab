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

// Package glue parses GLUE benchmark TSV files into examples.
package glue

import "strconv"

// Label is either a class name or, for regression tasks, a float.
type Label struct {
	text    string
	value   float64
	isFloat bool
}

// StringLabel returns a class label.
func StringLabel(s string) Label {
	return Label{text: s}
}

// FloatLabel returns a regression label.
func FloatLabel(f float64) Label {
	return Label{value: f, isFloat: true}
}

// IsFloat reports whether the label is a regression value.
func (l Label) IsFloat() bool { return l.isFloat }

// Float returns the regression value. It is zero for class labels.
func (l Label) Float() float64 { return l.value }

// String returns the class name, or the formatted regression value.
func (l Label) String() string {
	if l.isFloat {
		return strconv.FormatFloat(l.value, 'g', -1, 64)
	}
	return l.text
}

// Example is one raw labeled instance parsed from a TSV row.
type Example struct {
	ID    string
	TextA string
	// TextB is empty for single-sentence tasks.
	TextB string
	Label Label

	padding bool
}

// PaddingExample rounds out a final batch. Converters emit an all-zero
// record for it without tokenizing.
var PaddingExample = Example{padding: true}

// IsPadding reports whether ex is PaddingExample.
func (ex Example) IsPadding() bool { return ex.padding }

// HasTextB reports whether ex is a sentence pair.
func (ex Example) HasTextB() bool { return ex.TextB != "" }

// PadToBatch appends PaddingExample until len(examples) is a multiple of
// batchSize. A batchSize below 2 leaves examples unchanged.
func PadToBatch(examples []Example, batchSize int) []Example {
	if batchSize < 2 {
		return examples
	}
	for len(examples)%batchSize != 0 {
		examples = append(examples, PaddingExample)
	}
	return examples
}
