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
	"sync"
)

// idCodec is a tokenizer that natively works on ids.
type idCodec interface {
	// encode returns ids and their surface pieces for text.
	encode(text string) (ids []int, pieces []string)
	decode(ids []int) string
}

// pieceIndex adapts an id-native codec to the Tokenizer interface. Pieces
// seen during Tokenize are remembered so ConvertTokensToIDs can map them back;
// unseen pieces are encoded on their own and must yield a single id.
type pieceIndex struct {
	codec     idCodec
	unknownID int // negative when the vocabulary has no unknown token

	mu     sync.RWMutex
	pieces map[string]int
}

func newPieceIndex(codec idCodec, unknownID int) *pieceIndex {
	return &pieceIndex{
		codec:     codec,
		unknownID: unknownID,
		pieces:    make(map[string]int),
	}
}

func (p *pieceIndex) Tokenize(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	ids, pieces := p.codec.encode(text)
	p.mu.Lock()
	for i, piece := range pieces {
		if _, ok := p.pieces[piece]; !ok {
			p.pieces[piece] = ids[i]
		}
	}
	p.mu.Unlock()
	return pieces, nil
}

func (p *pieceIndex) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, err := p.lookup(tok)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (p *pieceIndex) lookup(piece string) (int, error) {
	p.mu.RLock()
	id, ok := p.pieces[piece]
	p.mu.RUnlock()
	if ok {
		return id, nil
	}

	ids, _ := p.codec.encode(piece)
	if len(ids) == 1 {
		p.mu.Lock()
		p.pieces[piece] = ids[0]
		p.mu.Unlock()
		return ids[0], nil
	}
	if p.unknownID >= 0 {
		return p.unknownID, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownToken, piece)
}

func (p *pieceIndex) Decode(ids []int) (string, error) {
	return p.codec.decode(ids), nil
}
