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

// TruncatePair shortens a and b until len(a)+len(b) <= budget, dropping the
// last token of the longer sequence each round. When both are the same
// length a is shortened. The inputs are resliced, never modified.
func TruncatePair(a, b []string, budget int) ([]string, []string) {
	budget = max(budget, 0)
	for len(a)+len(b) > budget {
		if len(b) > len(a) {
			b = b[:len(b)-1]
		} else {
			a = a[:len(a)-1]
		}
	}
	return a, b
}

func fitInt64(ids []int, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n && i < len(ids); i++ {
		out[i] = int64(ids[i])
	}
	return out
}

func fitInt32(ids []int, n int) []int32 {
	out := make([]int32, n)
	for i := 0; i < n && i < len(ids); i++ {
		out[i] = int32(ids[i])
	}
	return out
}

// bidirectionalMask is the outer product of the non-pad indicator of ids.
func bidirectionalMask(ids []int32) []int32 {
	n := len(ids)
	mask := make([]int32, n*n)
	for i := range n {
		if ids[i] == 0 {
			continue
		}
		for j := range n {
			if ids[j] != 0 {
				mask[i*n+j] = 1
			}
		}
	}
	return mask
}

// causalMask is bidirectionalMask restricted to the lower triangle.
func causalMask(ids []int32) []int32 {
	n := len(ids)
	mask := make([]int32, n*n)
	for i := range n {
		if ids[i] == 0 {
			continue
		}
		for j := 0; j <= i; j++ {
			if ids[j] != 0 {
				mask[i*n+j] = 1
			}
		}
	}
	return mask
}
