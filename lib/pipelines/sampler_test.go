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

package pipelines

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logs(ps ...float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = math.Log(p)
	}
	return out
}

func sum(ps []float64) float64 {
	var s float64
	for _, p := range ps {
		s += p
	}
	return s
}

func TestDistribution_TopK(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	scores := make([]float64, 200)
	for i := range scores {
		scores[i] = rng.NormFloat64() * 3
	}

	for _, k := range []int{1, 3, 17, 200} {
		candidates, probs, err := Distribution(scores, 1.0, k)
		require.NoError(t, err)
		assert.Len(t, candidates, k)
		assert.Len(t, probs, k)
		assert.InDelta(t, 1.0, sum(probs), 1e-9)
		for i := 1; i < k; i++ {
			assert.GreaterOrEqual(t, scores[candidates[i-1]], scores[candidates[i]])
		}
	}
}

func TestDistribution_UniformFallback(t *testing.T) {
	scores := []float64{-1e5, -1e5, -1e5, -1e5, -1e5}
	candidates, probs, err := Distribution(scores, 1.0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, candidates)
	for _, p := range probs {
		assert.InDelta(t, 1.0/3.0, p, 1e-12)
	}
}

func TestDistribution_TiesKeepVocabOrder(t *testing.T) {
	scores := []float64{0.5, 1, 1, 0.5, 1}
	candidates, _, err := Distribution(scores, 1.0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 4, 0}, candidates)
}

func TestDistribution_TopP(t *testing.T) {
	tests := []struct {
		name       string
		topP       float64
		candidates []int32
		probs      []float64
	}{
		{
			name:       "first weight below threshold adds one more",
			topP:       0.6,
			candidates: []int32{0, 1},
			probs:      []float64{0.625, 0.375},
		},
		{
			name:       "tiny threshold keeps the single best",
			topP:       0.01,
			candidates: []int32{0},
			probs:      []float64{1},
		},
		{
			name:       "threshold above two cumsums keeps all three",
			topP:       0.9,
			candidates: []int32{0, 1, 2},
			probs:      []float64{0.5, 0.3, 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, probs, err := Distribution(logs(0.5, 0.3, 0.2), tt.topP, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.candidates, candidates)
			require.Len(t, probs, len(tt.probs))
			for i := range probs {
				assert.InDelta(t, tt.probs[i], probs[i], 1e-9)
			}
		})
	}
}

func TestDistribution_TopPLimitsCandidates(t *testing.T) {
	scores := make([]float64, NucleusCandidates+500)
	for i := range scores {
		scores[i] = math.Log(1.0 / float64(len(scores)))
	}
	candidates, probs, err := Distribution(scores, 0.999999, 0)
	require.NoError(t, err)
	assert.Len(t, candidates, NucleusCandidates)
	assert.InDelta(t, 1.0, sum(probs), 1e-9)
}

func TestDistribution_Errors(t *testing.T) {
	_, _, err := Distribution(nil, 1.0, 1)
	require.ErrorIs(t, err, ErrEmptyScores)

	_, _, err = Distribution([]float64{1, 2}, 1.0, 0)
	require.ErrorIs(t, err, ErrInvalidTopK)

	_, _, err = Distribution([]float64{1, 2}, 1.0, 3)
	require.ErrorIs(t, err, ErrInvalidTopK)

	_, _, err = Distribution([]float64{1000, 0, 0}, 1.0, 2)
	require.ErrorIs(t, err, ErrNonFiniteMass)
}

func TestSampler_SeedReproducible(t *testing.T) {
	scores := logs(0.25, 0.25, 0.25, 0.25)
	a := NewSampler(42)
	b := NewSampler(42)
	for range 50 {
		sa, err := a.Select(scores, 1.0, 4)
		require.NoError(t, err)
		sb, err := b.Select(scores, 1.0, 4)
		require.NoError(t, err)
		assert.Equal(t, sa.TokenID, sb.TokenID)
	}
}

func TestSampler_DrawsOnlyCandidates(t *testing.T) {
	s := NewSampler(1)
	scores := logs(0.1, 0.4, 0.2, 0.3)
	for range 100 {
		sel, err := s.Select(scores, 1.0, 2)
		require.NoError(t, err)
		assert.Contains(t, []int32{1, 3}, sel.TokenID)
	}
}
