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

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultBPEEncoding is the tiktoken encoding used when none is configured.
const DefaultBPEEncoding = "cl100k_base"

func init() {
	// Set the offline loader for tiktoken to avoid network requests
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// BPE uses OpenAI's tiktoken byte-pair encodings. Pieces are the raw bytes of
// each token, so they may not be valid UTF-8 on their own.
type BPE struct {
	*pieceIndex
}

type tiktokenCodec struct {
	tk *tiktoken.Tiktoken
}

// NewBPE creates a BPE tokenizer with embedded dictionaries. Supported
// encodings include cl100k_base, o200k_base, p50k_base and r50k_base.
func NewBPE(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultBPEEncoding
	}

	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}
	return &BPE{pieceIndex: newPieceIndex(&tiktokenCodec{tk: tk}, -1)}, nil
}

func (c *tiktokenCodec) encode(text string) ([]int, []string) {
	ids := c.tk.Encode(text, nil, nil)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		pieces[i] = c.tk.Decode([]int{id})
	}
	return ids, pieces
}

func (c *tiktokenCodec) decode(ids []int) string {
	return c.tk.Decode(ids)
}
