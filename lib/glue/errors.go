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
	"errors"
	"fmt"
)

var (
	// ErrUnknownTask is returned for task names with no registered spec.
	ErrUnknownTask = errors.New("unsupported task")
	// ErrSplitUnsupported is returned when a task has no data for a split.
	ErrSplitUnsupported = errors.New("split not supported for task")
)

// RowTooShortError reports a TSV row with fewer columns than the task reads.
type RowTooShortError struct {
	File string
	Line int
	Need int
	Got  int
}

func (e *RowTooShortError) Error() string {
	return fmt.Sprintf("%s:%d: row has %d columns, need %d", e.File, e.Line, e.Got, e.Need)
}

// LabelParseError reports a regression label that is not a number.
type LabelParseError struct {
	File  string
	Line  int
	Value string
	Err   error
}

func (e *LabelParseError) Error() string {
	return fmt.Sprintf("%s:%d: invalid float label %q: %v", e.File, e.Line, e.Value, e.Err)
}

func (e *LabelParseError) Unwrap() error { return e.Err }
