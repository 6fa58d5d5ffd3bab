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

// Package tokenizer provides the string-level tokenizers used to turn example
// text into model ids.
package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tokenizer splits text into vocabulary pieces and maps pieces to ids.
// Implementations are safe for concurrent use.
type Tokenizer interface {
	// Tokenize splits text into vocabulary pieces.
	Tokenize(text string) ([]string, error)
	// ConvertTokensToIDs maps pieces to vocabulary ids.
	ConvertTokensToIDs(tokens []string) ([]int, error)
}

// Detokenizer is implemented by tokenizers that can render ids back to text.
type Detokenizer interface {
	Decode(ids []int) (string, error)
}

// ErrUnknownToken is returned when a piece has no vocabulary id and the
// tokenizer has no unknown token to fall back on.
var ErrUnknownToken = errors.New("token not in vocabulary")

// ErrNoDecoder is returned when decoding is asked of a tokenizer that cannot.
var ErrNoDecoder = errors.New("tokenizer cannot decode ids")

// Kind names a tokenizer implementation.
type Kind string

const (
	KindWordPiece     Kind = "wordpiece"
	KindSentencePiece Kind = "sentencepiece"
	KindBPE           Kind = "bpe"
	KindHuggingFace   Kind = "huggingface"
)

// Config selects and configures a tokenizer.
type Config struct {
	// Kind is the tokenizer implementation. Empty means detect from Path.
	Kind Kind `mapstructure:"kind" yaml:"kind" json:"kind"`
	// Path is a vocab file, model file, or model directory.
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// Lowercase applies to WordPiece only.
	Lowercase bool `mapstructure:"lowercase" yaml:"lowercase" json:"lowercase"`
	// Encoding names a tiktoken encoding for BPE, such as cl100k_base.
	Encoding string `mapstructure:"encoding" yaml:"encoding" json:"encoding"`
}

// Load builds the tokenizer described by cfg.
func Load(cfg Config) (Tokenizer, error) {
	switch cfg.Kind {
	case KindWordPiece:
		return NewWordPiece(cfg.Path, cfg.Lowercase)
	case KindSentencePiece:
		return NewSentencePiece(cfg.Path)
	case KindBPE:
		return NewBPE(cfg.Encoding)
	case KindHuggingFace:
		return NewHuggingFace(cfg.Path)
	case "":
		return LoadDir(cfg.Path, cfg.Lowercase)
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", cfg.Kind)
	}
}

// LoadDir loads a tokenizer from a model directory, detecting the format from
// the files present: tokenizer.json, then a SentencePiece model, then vocab.txt.
// A file path is also accepted and dispatched on its name.
func LoadDir(path string, lowercase bool) (Tokenizer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat tokenizer path: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path, lowercase)
	}

	for _, name := range []string{"tokenizer.json", "tokenizer.model", "spiece.model", "vocab.txt"} {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return loadFile(candidate, lowercase)
		}
	}
	return nil, fmt.Errorf("no tokenizer found in %s (expected tokenizer.json, tokenizer.model, spiece.model or vocab.txt)", path)
}

func loadFile(path string, lowercase bool) (Tokenizer, error) {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".json"):
		return NewHuggingFace(path)
	case strings.HasSuffix(name, ".model"):
		return NewSentencePiece(path)
	case strings.HasSuffix(name, ".txt"):
		return NewWordPiece(path, lowercase)
	default:
		return nil, fmt.Errorf("cannot detect tokenizer format of %s", path)
	}
}
