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
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// NucleusCandidates is how many of the highest-weighted tokens top-p sampling
// considers. The full vocabulary is never scanned for the nucleus.
const NucleusCandidates = 5000

var (
	// ErrEmptyScores is returned when Select is called with no scores.
	ErrEmptyScores = errors.New("sampler: empty score vector")
	// ErrInvalidTopK is returned when top-k sampling is asked for k outside [1, vocab].
	ErrInvalidTopK = errors.New("sampler: top_k out of range")
	// ErrNonFiniteMass is returned when exponentiated scores overflow. Scores
	// are exponentiated without subtracting the maximum, so logits above ~709
	// produce +Inf weights.
	ErrNonFiniteMass = errors.New("sampler: non-finite probability mass")
)

// Selection is the outcome of one sampling step.
type Selection struct {
	// TokenID is the drawn vocabulary id.
	TokenID int32
	// Candidates are the surviving vocabulary ids, highest weight first.
	Candidates []int32
	// Probs is the normalised distribution over Candidates.
	Probs []float64
}

// Sampler turns penalised log-scores into a token choice. The random source
// is owned by the sampler so a fixed seed reproduces the same draws.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler seeded with seed.
func NewSampler(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewSamplerWithRand creates a sampler drawing from rng.
func NewSamplerWithRand(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Select computes the candidate distribution for scores and draws one token.
//
// With topP < 1 the nucleus is taken from the NucleusCandidates highest
// weights; otherwise the topK highest weights are used.
func (s *Sampler) Select(scores []float64, topP float64, topK int) (Selection, error) {
	candidates, probs, err := Distribution(scores, topP, topK)
	if err != nil {
		return Selection{}, err
	}
	idx := s.draw(probs)
	return Selection{
		TokenID:    candidates[idx],
		Candidates: candidates,
		Probs:      probs,
	}, nil
}

// draw picks an index from a categorical distribution.
func (s *Sampler) draw(probs []float64) int {
	r := s.rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	// Rounding left the cumulative sum just under 1.
	return len(probs) - 1
}

// Distribution returns the candidate ids and their probabilities for scores
// without drawing. Ties in weight keep vocabulary order.
func Distribution(scores []float64, topP float64, topK int) ([]int32, []float64, error) {
	if len(scores) == 0 {
		return nil, nil, ErrEmptyScores
	}

	weights := make([]float64, len(scores))
	for i, score := range scores {
		weights[i] = math.Exp(score)
	}
	order := sortedByWeight(weights)

	if topP < 1.0 {
		return nucleus(weights, order, topP)
	}

	if topK <= 0 || topK > len(scores) {
		return nil, nil, fmt.Errorf("%w: top_k=%d vocab=%d", ErrInvalidTopK, topK, len(scores))
	}
	candidates := toIDs(order[:topK])
	probs := make([]float64, topK)
	var sum float64
	for i, id := range order[:topK] {
		probs[i] = weights[id]
		sum += weights[id]
	}
	if sum == 0 {
		// Every candidate underflowed: fall back to uniform over exactly topK.
		for i := range probs {
			probs[i] = 1 / float64(topK)
		}
		return candidates, probs, nil
	}
	if err := normalize(probs, sum); err != nil {
		return nil, nil, err
	}
	return candidates, probs, nil
}

func nucleus(weights []float64, order []int, topP float64) ([]int32, []float64, error) {
	limit := min(NucleusCandidates, len(order))
	top := order[:limit]

	var cum float64
	below := 0
	for _, id := range top {
		cum += weights[id]
		if cum < topP {
			below++
		}
	}
	k := min(below+1, limit)

	candidates := toIDs(top[:k])
	probs := make([]float64, k)
	var sum float64
	for i, id := range top[:k] {
		probs[i] = weights[id]
		sum += weights[id]
	}
	if sum == 0 {
		for i := range probs {
			probs[i] = 1 / float64(k)
		}
		return candidates, probs, nil
	}
	if err := normalize(probs, sum); err != nil {
		return nil, nil, err
	}
	return candidates, probs, nil
}

func normalize(probs []float64, sum float64) error {
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return ErrNonFiniteMass
	}
	for i := range probs {
		probs[i] /= sum
	}
	return nil
}

// sortedByWeight returns vocabulary ids ordered by descending weight.
func sortedByWeight(weights []float64) []int {
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return weights[order[i]] > weights[order[j]]
	})
	return order
}

func toIDs(order []int) []int32 {
	ids := make([]int32, len(order))
	for i, id := range order {
		ids[i] = int32(id)
	}
	return ids
}
