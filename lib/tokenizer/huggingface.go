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

package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// HuggingFace wraps a tokenizer.json file from the HuggingFace Tokenizers
// library. Pieces are the decoded text of each id.
type HuggingFace struct {
	*pieceIndex
}

type hfCodec struct {
	tok tokenizers.Tokenizer
}

// NewHuggingFace loads tokenizer.json at path. A tokenizer_config.json next to
// it is used for special-token information when present.
func NewHuggingFace(path string) (*HuggingFace, error) {
	var config *api.Config
	configPath := filepath.Join(filepath.Dir(path), "tokenizer_config.json")
	if _, err := os.Stat(configPath); err == nil {
		normalized, err := normalizeTokenizerConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("normalizing tokenizer config: %w", err)
		}
		config, err = api.ParseConfigContent(normalized)
		if err != nil {
			return nil, fmt.Errorf("parsing tokenizer config: %w", err)
		}
		config.ConfigFile = configPath
	}

	tok, err := hftokenizer.NewFromFile(config, path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer.json: %w", err)
	}

	unknownID := -1
	if id, err := tok.SpecialTokenID(api.TokUnknown); err == nil {
		unknownID = id
	}
	return &HuggingFace{pieceIndex: newPieceIndex(&hfCodec{tok: tok}, unknownID)}, nil
}

func (c *hfCodec) encode(text string) ([]int, []string) {
	ids := c.tok.Encode(text)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		pieces[i] = c.tok.Decode([]int{id})
	}
	return ids, pieces
}

func (c *hfCodec) decode(ids []int) string {
	return c.tok.Decode(ids)
}

// normalizeTokenizerConfig rewrites AddedToken objects such as
// {"__type": "AddedToken", "content": "<s>"} to plain strings.
func normalizeTokenizerConfig(configPath string) ([]byte, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]any
	if err := sonic.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parsing config JSON: %w", err)
	}

	for _, field := range []string{
		"bos_token", "eos_token", "pad_token", "unk_token",
		"cls_token", "sep_token", "mask_token",
	} {
		if val, ok := raw[field]; ok {
			raw[field] = extractTokenContent(val)
		}
	}
	return sonic.Marshal(raw)
}

func extractTokenContent(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if content, ok := val["content"].(string); ok {
			return content
		}
	}
	return ""
}
