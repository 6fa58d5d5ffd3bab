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

// Package features converts GLUE examples into fixed-shape numeric records.
package features

import "fmt"

// DType is the element type of a tensor.
type DType string

const (
	Int32 DType = "int32"
	Int64 DType = "int64"
)

// Variable marks a dimension whose size is not fixed by the schema.
const Variable = -1

// Field declares one named tensor of a record.
type Field struct {
	Name  string `json:"name"`
	DType DType  `json:"type"`
	Shape []int  `json:"shape"`
}

// Size is the element count implied by Shape, or -1 when any dimension is
// Variable.
func (f Field) Size() int {
	n := 1
	for _, d := range f.Shape {
		if d == Variable {
			return Variable
		}
		n *= d
	}
	return n
}

// Schema is the ordered list of fields every record of a dataset carries.
type Schema []Field

// Field returns the field called name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Tensor is a flat row-major array with a shape. Exactly one of Int32s and
// Int64s is populated, matching DType.
type Tensor struct {
	DType  DType
	Shape  []int
	Int32s []int32
	Int64s []int64
}

// Len is the number of stored elements.
func (t Tensor) Len() int {
	if t.DType == Int32 {
		return len(t.Int32s)
	}
	return len(t.Int64s)
}

// Int64Tensor returns a 1-D int64 tensor over vals.
func Int64Tensor(vals []int64) Tensor {
	return Tensor{DType: Int64, Shape: []int{len(vals)}, Int64s: vals}
}

// Int32Tensor returns an int32 tensor over vals with the given shape. With no
// shape it is 1-D.
func Int32Tensor(vals []int32, shape ...int) Tensor {
	if len(shape) == 0 {
		shape = []int{len(vals)}
	}
	return Tensor{DType: Int32, Shape: shape, Int32s: vals}
}

// Record maps field names to tensors.
type Record map[string]Tensor

// Conforms reports the first way r deviates from s: a missing or extra field,
// a dtype mismatch, or a shape that disagrees with a fixed dimension.
func (s Schema) Conforms(r Record) error {
	if len(r) != len(s) {
		return fmt.Errorf("record has %d fields, schema has %d", len(r), len(s))
	}
	for _, f := range s {
		t, ok := r[f.Name]
		if !ok {
			return fmt.Errorf("missing field %q", f.Name)
		}
		if t.DType != f.DType {
			return fmt.Errorf("field %q: dtype %s, want %s", f.Name, t.DType, f.DType)
		}
		if len(t.Shape) != len(f.Shape) {
			return fmt.Errorf("field %q: rank %d, want %d", f.Name, len(t.Shape), len(f.Shape))
		}
		n := 1
		for i, d := range t.Shape {
			if f.Shape[i] != Variable && f.Shape[i] != d {
				return fmt.Errorf("field %q: shape %v, want %v", f.Name, t.Shape, f.Shape)
			}
			n *= d
		}
		if t.Len() != n {
			return fmt.Errorf("field %q: %d elements for shape %v", f.Name, t.Len(), t.Shape)
		}
	}
	return nil
}
