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

// Package backends defines the model capability consumed by the decoding engine.
//
// The network itself is a black box: the engine only needs a single blocking
// Predict call per decode step that returns next-token logits. Two call shapes
// are used:
//
//   - plain mode: InputIDs + AttentionMask over the full (padded) sequence
//   - cached-encoder mode: one priming call over the prompt that returns an
//     EncoderOutput, then per-step calls carrying EncoderOutput, the encoder
//     mask, CurrentIndex and the decoder buffer
//
// RemoteModel implements the capability over HTTP for the CLI.
package backends

// ModelInputs contains the inputs for a single model call.
// Different call shapes use different subsets of fields.
type ModelInputs struct {
	// InputIDs is the primary input, right-padded to the model length.
	// Nil on cached decoder steps.
	InputIDs []int32 `json:"input_ids,omitempty"`
	// AttentionMask marks valid positions of InputIDs. In cached mode it is
	// the encoder mask captured when the encoder output was produced.
	AttentionMask []int32 `json:"attention_mask,omitempty"`

	// CurrentIndex is the position whose next-token logits are requested.
	CurrentIndex int `json:"current_index"`

	// For cached-encoder decoding
	EncoderOutput   *EncoderOutput `json:"encoder_output,omitempty"`
	DecoderInputIDs []int32        `json:"decoder_input_ids,omitempty"`
	DecoderMask     []int32        `json:"decoder_mask,omitempty"`
}

// ModelOutput contains the outputs of a single model call.
type ModelOutput struct {
	// Logits over the vocabulary for the requested position [vocab_size].
	Logits []float32 `json:"logits,omitempty"`
	// EncoderOutput is populated by the priming call in cached-encoder mode.
	EncoderOutput *EncoderOutput `json:"encoder_output,omitempty"`
}

// EncoderOutput holds an opaque encoder representation that is computed once
// per generation call and handed back to the model on every decoder step.
type EncoderOutput struct {
	// HiddenStates are the encoder's hidden states, flattened.
	HiddenStates []float32 `json:"hidden_states"`
	// Shape holds the tensor dimensions [batch, seq, hidden].
	Shape [3]int `json:"shape"`
}

// DecoderConfig holds the model-side settings the generation loop needs.
type DecoderConfig struct {
	// VocabSize is the size of the vocabulary (length of every logits vector).
	VocabSize int `json:"vocab_size"`
	// MaxLength is the sequence length the model was trained with.
	MaxLength int `json:"max_length"`
	// MaxDecodeLength is the decoder buffer length in cached-encoder mode.
	MaxDecodeLength int `json:"max_decode_length"`
	// EOSTokenID is the end-of-sequence token ID.
	EOSTokenID int32 `json:"eos_token_id"`
	// PadTokenID is the padding token ID. Generation reserves 0 for padding.
	PadTokenID int32 `json:"pad_token_id"`
	// DecoderStartTokenID is the token the decoder buffer starts with in
	// cached-encoder mode.
	DecoderStartTokenID int32 `json:"decoder_start_token_id"`
}

// DefaultDecoderConfig returns defaults for a BERT-vocabulary GPT-style model.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		VocabSize:           30522,
		MaxLength:           1024,
		MaxDecodeLength:     128,
		EOSTokenID:          50256,
		PadTokenID:          0,
		DecoderStartTokenID: 0,
	}
}

// GenerationConfig holds parameters for text generation.
type GenerationConfig struct {
	// MaxNewTokens is the maximum number of tokens to generate.
	MaxNewTokens int
	// TopK limits sampling to the K highest-weighted tokens. Only used when TopP is 1.
	TopK int
	// TopP enables nucleus sampling when below 1.0.
	TopP float64
	// FrequencyPenalty is subtracted once per prior emission of a token.
	FrequencyPenalty float64
	// PresencePenalty is subtracted once for any token emitted at least once.
	PresencePenalty float64
	// UseEncoderCache primes the model once and reuses the encoder output.
	UseEncoderCache bool
	// Seed seeds the sampler's random source.
	Seed uint64
}

// DefaultGenerationConfig returns sensible defaults for generation.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		MaxNewTokens:     128,
		TopK:             3,
		TopP:             1.0,
		FrequencyPenalty: 1.5,
		PresencePenalty:  0.3,
		UseEncoderCache:  false,
		Seed:             1,
	}
}
