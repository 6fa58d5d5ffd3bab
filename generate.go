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

package hatchery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antflydb/hatchery/lib/backends"
	"github.com/antflydb/hatchery/lib/pipelines"
	"github.com/antflydb/hatchery/lib/tokenizer"
	"go.uber.org/zap"
)

// GenerateConfig configures RunGeneration.
type GenerateConfig struct {
	// ModelURL is the base URL of the predict server.
	ModelURL string `mapstructure:"model_url" yaml:"model_url"`
	// ModelName labels logs and metrics. Defaults to the URL host.
	ModelName string `mapstructure:"model_name" yaml:"model_name"`

	Tokenizer tokenizer.Config `mapstructure:"tokenizer" yaml:"tokenizer"`
	Prompt    string           `mapstructure:"prompt" yaml:"prompt"`

	Generation backends.GenerationConfig `mapstructure:"generation" yaml:"generation"`
	// Decoder is used when the predict server does not publish its own
	// config. Nil means backends.DefaultDecoderConfig.
	Decoder *backends.DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
}

// DefaultGenerateConfig returns the defaults used by the CLI.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		ModelURL:   "http://localhost:8500",
		Generation: *backends.DefaultGenerationConfig(),
	}
}

// Generation is the outcome of RunGeneration.
type Generation struct {
	PromptIDs []int32
	// TokenIDs is the full output sequence, see pipelines.GenerateResult.
	TokenIDs []int32
	// Completion is the decoded text of the newly generated tokens. It is
	// empty when the tokenizer cannot decode.
	Completion string
	// Text is the decoded text of TokenIDs.
	Text   string
	Result *pipelines.GenerateResult
}

// RunGeneration tokenizes the prompt, samples a continuation from the remote
// model and decodes it.
func RunGeneration(ctx context.Context, logger *zap.Logger, cfg GenerateConfig) (*Generation, error) {
	tok, err := tokenizer.Load(cfg.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}
	return RunGenerationWithTokenizer(ctx, logger, cfg, tok)
}

// RunGenerationWithTokenizer is RunGeneration with a caller-supplied tokenizer.
func RunGenerationWithTokenizer(ctx context.Context, logger *zap.Logger, cfg GenerateConfig, tok tokenizer.Tokenizer) (*Generation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	prompt, err := encodePrompt(tok, cfg.Prompt)
	if err != nil {
		return nil, err
	}

	remote, err := backends.NewRemoteModel(backends.RemoteModelConfig{
		BaseURL: cfg.ModelURL,
		Name:    cfg.ModelName,
		Logger:  logger.Named("model"),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = remote.Close() }()

	if _, err := remote.LoadDecoderConfig(ctx); err != nil {
		return nil, fmt.Errorf("loading decoder config: %w", err)
	}
	decConfig := backends.ResolveDecoderConfig(remote, cfg.Decoder)
	genConfig := cfg.Generation

	model := &instrumentedModel{Model: remote}
	gen := pipelines.NewGenerator(&genConfig, decConfig, logger.Named("generator"))

	RecordGeneratorRequest(remote.Name())
	logger.Info("Generating",
		zap.String("model", remote.Name()),
		zap.Int("promptTokens", len(prompt)),
		zap.Int("maxNewTokens", genConfig.MaxNewTokens),
		zap.Int("topK", genConfig.TopK),
		zap.Float64("topP", genConfig.TopP),
		zap.Bool("encoderCache", genConfig.UseEncoderCache))

	start := time.Now()
	result, err := gen.Generate(ctx, model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}
	RecordGeneration(remote.Name(), result.Steps, result.NewTokens)

	out := &Generation{
		PromptIDs: prompt,
		TokenIDs:  result.TokenIDs,
		Result:    result,
	}
	if err := decodeGeneration(tok, out); err != nil {
		return nil, err
	}

	logger.Info("Generation complete",
		zap.String("model", remote.Name()),
		zap.Int("newTokens", result.NewTokens),
		zap.Int("modelCalls", result.ModelCalls),
		zap.Bool("stoppedAtEOS", result.StoppedAtEOS),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func encodePrompt(tok tokenizer.Tokenizer, text string) ([]int32, error) {
	pieces, err := tok.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing prompt: %w", err)
	}
	ids, err := tok.ConvertTokensToIDs(pieces)
	if err != nil {
		return nil, fmt.Errorf("converting prompt tokens: %w", err)
	}
	prompt := make([]int32, len(ids))
	for i, id := range ids {
		prompt[i] = int32(id)
	}
	return prompt, nil
}

func decodeGeneration(tok tokenizer.Tokenizer, out *Generation) error {
	d, ok := tok.(tokenizer.Detokenizer)
	if !ok {
		return nil
	}
	all := toInts(out.TokenIDs)
	text, err := d.Decode(all)
	if errors.Is(err, tokenizer.ErrNoDecoder) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decoding output: %w", err)
	}
	out.Text = text

	completion, err := d.Decode(all[len(all)-min(out.Result.NewTokens, len(all)):])
	if err != nil {
		return fmt.Errorf("decoding completion: %w", err)
	}
	out.Completion = completion
	return nil
}

func toInts(ids []int32) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// instrumentedModel records predict latency per call.
type instrumentedModel struct {
	backends.Model
}

func (m *instrumentedModel) Predict(ctx context.Context, inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
	start := time.Now()
	out, err := m.Model.Predict(ctx, inputs)
	status := "ok"
	if err != nil {
		status = "error"
	}
	RecordModelCallDuration(m.Name(), status, time.Since(start).Seconds())
	return out, err
}
