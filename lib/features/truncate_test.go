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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toks(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix
	}
	return out
}

func TestTruncatePair(t *testing.T) {
	tests := []struct {
		name         string
		a, b, budget int
		wantA, wantB int
	}{
		{name: "fits", a: 2, b: 3, budget: 5, wantA: 2, wantB: 3},
		{name: "longer first", a: 6, b: 2, budget: 5, wantA: 3, wantB: 2},
		{name: "longer second", a: 1, b: 7, budget: 4, wantA: 1, wantB: 3},
		{name: "ties cut first", a: 3, b: 3, budget: 5, wantA: 2, wantB: 3},
		{name: "alternates", a: 4, b: 4, budget: 4, wantA: 2, wantB: 2},
		{name: "zero budget", a: 2, b: 1, budget: 0, wantA: 0, wantB: 0},
		{name: "negative budget", a: 2, b: 1, budget: -1, wantA: 0, wantB: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := TruncatePair(toks(tt.a, "a"), toks(tt.b, "b"), tt.budget)
			assert.Len(t, a, tt.wantA)
			assert.Len(t, b, tt.wantB)
		})
	}
}

func TestTruncatePair_KeepsPrefix(t *testing.T) {
	a := []string{"1", "2", "3", "4"}
	b := []string{"x", "y"}
	gotA, gotB := TruncatePair(a, b, 4)
	assert.Equal(t, []string{"1", "2"}, gotA)
	assert.Equal(t, []string{"x", "y"}, gotB)
	assert.Equal(t, []string{"1", "2", "3", "4"}, a)
}

func TestTruncatePair_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	for range 500 {
		a := toks(rng.IntN(30), "a")
		b := toks(rng.IntN(30), "b")
		budget := rng.IntN(40)

		a1, b1 := TruncatePair(a, b, budget)
		require.LessOrEqual(t, len(a1)+len(b1), budget)

		a2, b2 := TruncatePair(a1, b1, budget)
		assert.Equal(t, a1, a2)
		assert.Equal(t, b1, b2)
	}
}

func TestMasks(t *testing.T) {
	ids := []int32{5, 0, 7}
	assert.Equal(t, []int32{
		1, 0, 1,
		0, 0, 0,
		1, 0, 1,
	}, bidirectionalMask(ids))
	assert.Equal(t, []int32{
		1, 0, 0,
		0, 0, 0,
		1, 0, 1,
	}, causalMask(ids))
}

func TestSchemaConforms(t *testing.T) {
	schema := Schema{
		{Name: "ids", DType: Int32, Shape: []int{Variable}},
		{Name: "mask", DType: Int32, Shape: []int{2, 2}},
	}
	good := Record{
		"ids":  Int32Tensor([]int32{1, 2, 3}),
		"mask": Int32Tensor([]int32{1, 0, 1, 1}, 2, 2),
	}
	require.NoError(t, schema.Conforms(good))
	assert.Equal(t, Variable, schema[0].Size())
	assert.Equal(t, 4, schema[1].Size())

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "missing field", rec: Record{"ids": good["ids"]}},
		{name: "wrong dtype", rec: Record{"ids": Int64Tensor([]int64{1}), "mask": good["mask"]}},
		{name: "wrong shape", rec: Record{"ids": good["ids"], "mask": Int32Tensor([]int32{1, 0, 1}, 3)}},
		{name: "short data", rec: Record{"ids": good["ids"], "mask": Int32Tensor([]int32{1}, 2, 2)}},
		{name: "extra field", rec: Record{"ids": good["ids"], "mask": good["mask"], "x": good["ids"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, schema.Conforms(tt.rec))
		})
	}
}
