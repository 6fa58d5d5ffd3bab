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

	esentencepiece "github.com/eliben/go-sentencepiece"
)

// SentencePiece wraps a SentencePiece model file.
type SentencePiece struct {
	*pieceIndex
}

type sentencepieceCodec struct {
	proc *esentencepiece.Processor
}

// NewSentencePiece loads a SentencePiece tokenizer.model.
func NewSentencePiece(modelPath string) (*SentencePiece, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading sentencepiece model: %w", err)
	}
	info := proc.ModelInfo()
	return &SentencePiece{
		pieceIndex: newPieceIndex(&sentencepieceCodec{proc: proc}, info.UnknownID),
	}, nil
}

func (c *sentencepieceCodec) encode(text string) ([]int, []string) {
	tokens := c.proc.Encode(text)
	ids := make([]int, len(tokens))
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
		pieces[i] = tok.Text
	}
	return ids, pieces
}

func (c *sentencepieceCodec) decode(ids []int) string {
	return c.proc.Decode(ids)
}
