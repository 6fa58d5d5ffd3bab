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
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/antflydb/hatchery/lib/backends"
)

var (
	// ErrPromptTooLong is returned when the prompt exceeds the model's max length.
	ErrPromptTooLong = errors.New("prompt longer than model max length")
	// ErrLogitsShape is returned when the model returns logits that do not
	// cover the vocabulary.
	ErrLogitsShape = errors.New("model returned logits of unexpected length")
	// ErrMissingEncoderOutput is returned when cache priming yields no encoder state.
	ErrMissingEncoderOutput = errors.New("model returned no encoder output")
)

// DecodeState holds the fixed-size buffers threaded through the decoding loop.
// Positions at or beyond ValidLength hold the pad id 0 and a zero mask.
type DecodeState struct {
	// TokenBuffer is the token sequence fed to the model, right-padded with 0.
	TokenBuffer []int32
	// AttentionMask marks valid positions of TokenBuffer with 1.
	AttentionMask []int32
	// Frequency counts how often each vocabulary id was emitted. Prompt
	// tokens are not counted.
	Frequency []int32
	// ValidLength is the number of real tokens in TokenBuffer.
	ValidLength int

	// EncoderOutput is the cached encoder state in encoder-cache mode.
	EncoderOutput *backends.EncoderOutput
	// EncoderMask is the prompt mask paired with EncoderOutput.
	EncoderMask []int32
}

// NewDecodeState lays prompt into buffers of length maxLength with a zeroed
// frequency table over a vocabulary of vocabSize.
func NewDecodeState(prompt []int32, maxLength, vocabSize int) *DecodeState {
	s := &DecodeState{
		TokenBuffer:   make([]int32, maxLength),
		AttentionMask: make([]int32, maxLength),
		Frequency:     make([]int32, vocabSize),
		ValidLength:   len(prompt),
	}
	copy(s.TokenBuffer, prompt)
	for i := range prompt {
		s.AttentionMask[i] = 1
	}
	return s
}

// CurrentIndex is the position whose logits predict the next token.
func (s *DecodeState) CurrentIndex() int {
	return max(s.ValidLength-1, 0)
}

// Commit writes tok at ValidLength and advances.
func (s *DecodeState) Commit(tok int32) {
	s.TokenBuffer[s.ValidLength] = tok
	s.AttentionMask[s.ValidLength] = 1
	if int(tok) >= 0 && int(tok) < len(s.Frequency) {
		s.Frequency[tok]++
	}
	s.ValidLength++
}

// Output returns the buffer prefix whose length is the count of non-zero
// tokens. A committed id 0 therefore shortens the output.
func (s *DecodeState) Output(skipStart bool) []int32 {
	buf := s.TokenBuffer
	if skipStart && len(buf) > 0 {
		buf = buf[1:]
	}
	n := 0
	for _, tok := range buf {
		if tok != 0 {
			n++
		}
	}
	out := make([]int32, n)
	copy(out, buf[:n])
	return out
}

// GenerateResult holds the result of generation.
type GenerateResult struct {
	// TokenIDs is the prompt followed by the generated tokens, or only the
	// decoder tokens in encoder-cache mode.
	TokenIDs []int32
	// NewTokens is how many sampled tokens were committed.
	NewTokens int
	// Steps is how many sampling steps ran, including a final dropped one.
	Steps int
	// ModelCalls is how many times the model was invoked.
	ModelCalls int
	// StoppedAtEOS indicates whether generation stopped on the EOS token.
	StoppedAtEOS bool
}

// Generator handles autoregressive sampling against a Model.
type Generator struct {
	Config  *backends.GenerationConfig
	Decoder *backends.DecoderConfig
	Sampler *Sampler
	Logger  *zap.Logger
}

// NewGenerator creates a Generator. Nil configs fall back to defaults and the
// sampler is seeded from genConfig.Seed.
func NewGenerator(genConfig *backends.GenerationConfig, decConfig *backends.DecoderConfig, logger *zap.Logger) *Generator {
	if genConfig == nil {
		genConfig = backends.DefaultGenerationConfig()
	}
	if decConfig == nil {
		decConfig = backends.DefaultDecoderConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		Config:  genConfig,
		Decoder: decConfig,
		Sampler: NewSampler(genConfig.Seed),
		Logger:  logger,
	}
}

// Generate extends prompt until EOS is sampled or the target length is
// reached. The token that triggers either stop condition is not committed.
//
// The context is checked before every model call; cancellation returns
// ctx.Err() and no partial result.
func (g *Generator) Generate(ctx context.Context, model backends.Model, prompt []int32) (*GenerateResult, error) {
	dec := g.Decoder
	if dec.VocabSize <= 0 {
		return nil, fmt.Errorf("invalid vocab size %d", dec.VocabSize)
	}
	if len(prompt) > dec.MaxLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrPromptTooLong, len(prompt), dec.MaxLength)
	}

	state := NewDecodeState(prompt, dec.MaxLength, dec.VocabSize)
	target := min(len(prompt)+g.Config.MaxNewTokens, dec.MaxLength)
	result := &GenerateResult{}

	if g.Config.MaxNewTokens <= 0 {
		result.TokenIDs = state.Output(false)
		return result, nil
	}

	cached := g.Config.UseEncoderCache
	if cached {
		if dec.MaxDecodeLength <= 0 {
			return nil, fmt.Errorf("invalid max decode length %d", dec.MaxDecodeLength)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.primeEncoder(ctx, model, state); err != nil {
			return nil, err
		}
		result.ModelCalls++
		target = min(target, dec.MaxDecodeLength)
	}

	for state.ValidLength < target {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := g.step(ctx, model, state, cached)
		result.ModelCalls++
		if err != nil {
			return nil, err
		}

		scores := g.penalize(logits, state.Frequency)
		sel, err := g.Sampler.Select(scores, g.Config.TopP, g.Config.TopK)
		if err != nil {
			return nil, fmt.Errorf("sampling step %d: %w", result.Steps, err)
		}
		result.Steps++

		g.Logger.Debug("Sampled token",
			zap.Int("step", result.Steps),
			zap.Int("currentIndex", state.CurrentIndex()),
			zap.Int32("token", sel.TokenID),
			zap.Int("candidates", len(sel.Candidates)))

		if sel.TokenID == dec.EOSTokenID {
			result.StoppedAtEOS = true
			break
		}
		if state.ValidLength == target-1 {
			break
		}
		state.Commit(sel.TokenID)
		result.NewTokens++
	}

	result.TokenIDs = state.Output(cached)
	return result, nil
}

// primeEncoder runs the encoder once over the prompt and switches state to a
// decoder buffer holding only the start token.
func (g *Generator) primeEncoder(ctx context.Context, model backends.Model, state *DecodeState) error {
	out, err := model.Predict(ctx, &backends.ModelInputs{
		InputIDs:      state.TokenBuffer,
		AttentionMask: state.AttentionMask,
	})
	if err != nil {
		return fmt.Errorf("encoding prompt: %w", err)
	}
	if out == nil || out.EncoderOutput == nil {
		return ErrMissingEncoderOutput
	}

	dec := g.Decoder
	state.EncoderOutput = out.EncoderOutput
	state.EncoderMask = state.AttentionMask
	state.TokenBuffer = make([]int32, dec.MaxDecodeLength)
	state.AttentionMask = make([]int32, dec.MaxDecodeLength)
	state.TokenBuffer[0] = dec.DecoderStartTokenID
	state.AttentionMask[0] = 1
	state.ValidLength = 1
	return nil
}

// step runs the model once and returns the logits at the current index.
func (g *Generator) step(ctx context.Context, model backends.Model, state *DecodeState, cached bool) ([]float32, error) {
	inputs := &backends.ModelInputs{CurrentIndex: state.CurrentIndex()}
	if cached {
		inputs.AttentionMask = state.EncoderMask
		inputs.EncoderOutput = state.EncoderOutput
		inputs.DecoderInputIDs = state.TokenBuffer
		inputs.DecoderMask = state.AttentionMask
	} else {
		inputs.InputIDs = state.TokenBuffer
		inputs.AttentionMask = state.AttentionMask
	}

	out, err := model.Predict(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("model step at index %d: %w", inputs.CurrentIndex, err)
	}
	if out == nil || len(out.Logits) != g.Decoder.VocabSize {
		got := 0
		if out != nil {
			got = len(out.Logits)
		}
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLogitsShape, got, g.Decoder.VocabSize)
	}
	return out.Logits, nil
}

// penalize applies frequency and presence penalties to logits.
func (g *Generator) penalize(logits []float32, frequency []int32) []float64 {
	fp := g.Config.FrequencyPenalty
	pp := g.Config.PresencePenalty
	scores := make([]float64, len(logits))
	for i, logit := range logits {
		score := float64(logit)
		if f := frequency[i]; f > 0 {
			score -= float64(f)*fp + pp
		}
		scores[i] = score
	}
	return scores
}
