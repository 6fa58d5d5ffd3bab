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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antflydb/hatchery"
	"github.com/antflydb/hatchery/lib/backends"
	"github.com/antflydb/hatchery/lib/tokenizer"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Sample a continuation of a prompt from a model predict server",
	Long: `Tokenize a prompt, extend it token by token with top-k or nucleus
sampling against a model predict server, and print the decoded result.

The predict server answers POST /predict with next-token logits and may
publish its decoder settings on GET /config; otherwise the --vocab-size,
--max-length and related flags are used.

Examples:
  # Top-3 sampling with repetition penalties
  hatchery generate --model-url http://localhost:8500 \
    --tokenizer-path gpt2/ --prompt "Once upon a time"

  # Nucleus sampling, print token ids as JSON
  hatchery generate --model-url http://localhost:8500 --vocab vocab.txt \
    --top-p 0.9 --seed 7 --output json --prompt "hello world"`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	gen := backends.DefaultGenerationConfig()
	dec := backends.DefaultDecoderConfig()
	f := generateCmd.Flags()
	f.String("model-url", hatchery.DefaultGenerateConfig().ModelURL, "base URL of the model predict server")
	f.String("model-name", "", "model name for logs and metrics (default: URL host)")
	f.String("prompt", "", "prompt text")
	f.String("vocab", "", "WordPiece vocab.txt")
	f.String("spm-model", "", "SentencePiece model file")
	f.String("tokenizer", "", "tokenizer kind: wordpiece, sentencepiece, bpe or huggingface (default: detect)")
	f.String("tokenizer-path", "", "tokenizer file or model directory")
	f.String("bpe-encoding", tokenizer.DefaultBPEEncoding, "tiktoken encoding for the bpe tokenizer")
	f.Int("max-new-tokens", gen.MaxNewTokens, "maximum number of tokens to generate")
	f.Int("top-k", gen.TopK, "sample from the k most likely tokens (used when --top-p is 1)")
	f.Float64("top-p", gen.TopP, "nucleus sampling threshold; 1 disables")
	f.Float64("frequency-penalty", gen.FrequencyPenalty, "penalty per prior occurrence of a token")
	f.Float64("presence-penalty", gen.PresencePenalty, "penalty for any prior occurrence of a token")
	f.Uint64("seed", gen.Seed, "random seed")
	f.Bool("encoder-cache", gen.UseEncoderCache, "run the encoder once and decode from its cached output")
	f.Int("vocab-size", dec.VocabSize, "vocabulary size when the server has no /config")
	f.Int("max-length", dec.MaxLength, "model sequence length when the server has no /config")
	f.Int("max-decode-length", dec.MaxDecodeLength, "decoder buffer length in encoder-cache mode")
	f.Int32("eos-token-id", dec.EOSTokenID, "end-of-sequence token id")
	f.Int32("decoder-start-token-id", dec.DecoderStartTokenID, "first decoder token in encoder-cache mode")
	f.String("output", "text", "output format: text or json")

	for _, name := range []string{
		"model-url", "model-name", "prompt", "vocab", "spm-model", "tokenizer",
		"tokenizer-path", "bpe-encoding", "max-new-tokens", "top-k", "top-p",
		"frequency-penalty", "presence-penalty", "seed", "encoder-cache",
		"vocab-size", "max-length", "max-decode-length", "eos-token-id",
		"decoder-start-token-id", "output",
	} {
		mustBindPFlag("generate."+strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
}

func generateConfig() (hatchery.GenerateConfig, error) {
	cfg := hatchery.GenerateConfig{
		ModelURL:  viper.GetString("generate.model_url"),
		ModelName: viper.GetString("generate.model_name"),
		Prompt:    viper.GetString("generate.prompt"),
		Generation: backends.GenerationConfig{
			MaxNewTokens:     viper.GetInt("generate.max_new_tokens"),
			TopK:             viper.GetInt("generate.top_k"),
			TopP:             viper.GetFloat64("generate.top_p"),
			FrequencyPenalty: viper.GetFloat64("generate.frequency_penalty"),
			PresencePenalty:  viper.GetFloat64("generate.presence_penalty"),
			UseEncoderCache:  viper.GetBool("generate.encoder_cache"),
			Seed:             viper.GetUint64("generate.seed"),
		},
		Decoder: &backends.DecoderConfig{
			VocabSize:           viper.GetInt("generate.vocab_size"),
			MaxLength:           viper.GetInt("generate.max_length"),
			MaxDecodeLength:     viper.GetInt("generate.max_decode_length"),
			EOSTokenID:          viper.GetInt32("generate.eos_token_id"),
			DecoderStartTokenID: viper.GetInt32("generate.decoder_start_token_id"),
		},
	}
	if cfg.Prompt == "" {
		return cfg, errors.New("--prompt is required")
	}
	if p := cfg.Generation.TopP; p <= 0 || p > 1 {
		return cfg, fmt.Errorf("--top-p must be in (0, 1], got %v", p)
	}

	tok, err := tokenizerFlags("generate")
	if err != nil {
		return cfg, err
	}
	cfg.Tokenizer = tok
	return cfg, nil
}

type generateOutput struct {
	Prompt       string  `json:"prompt"`
	Completion   string  `json:"completion"`
	Text         string  `json:"text"`
	TokenIDs     []int32 `json:"token_ids"`
	NewTokens    int     `json:"new_tokens"`
	StoppedAtEOS bool    `json:"stopped_at_eos"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := generateConfig()
	if err != nil {
		return err
	}
	output := viper.GetString("generate.output")
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown --output %q (expected text or json)", output)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()
	startHealth(logger).Store(true)

	gen, err := hatchery.RunGeneration(ctx, logger, cfg)
	if err != nil {
		return err
	}

	if output == "json" {
		data, err := sonic.ConfigStd.MarshalIndent(generateOutput{
			Prompt:       cfg.Prompt,
			Completion:   gen.Completion,
			Text:         gen.Text,
			TokenIDs:     gen.TokenIDs,
			NewTokens:    gen.Result.NewTokens,
			StoppedAtEOS: gen.Result.StoppedAtEOS,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if gen.Text == "" {
		logger.Warn("Tokenizer cannot decode, printing token ids", zap.String("tokenizer", string(cfg.Tokenizer.Kind)))
		fmt.Println(gen.TokenIDs)
		return nil
	}
	fmt.Println(gen.Text)
	return nil
}
