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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/decoder"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/util"
)

const unknownPiece = "[UNK]"

// WordPiece is a BERT-style tokenizer backed by a one-token-per-line vocab.
type WordPiece struct {
	tokenizer *tokenizer.Tokenizer
	unknownID int
}

// NewWordPiece creates a WordPiece tokenizer from vocabPath. Bracketed vocab
// entries such as [CLS] or [EOD] are registered as special tokens so they
// survive pre-tokenization intact.
func NewWordPiece(vocabPath string, lowercase bool) (*WordPiece, error) {
	vocab, specials, err := readVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	unkID, ok := vocab[unknownPiece]
	if !ok {
		return nil, fmt.Errorf("vocab %s has no %s entry", vocabPath, unknownPiece)
	}

	opts := util.NewParams(map[string]any{
		"unk_token": unknownPiece,
	})
	wp, err := wordpiece.New(vocab, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create wordpiece model: %w", err)
	}

	tk := tokenizer.NewTokenizer(wp)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, lowercase, true, lowercase))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	for _, s := range specials {
		tk.AddSpecialTokens([]tokenizer.AddedToken{tokenizer.NewAddedToken(s, true)})
	}
	tk.WithDecoder(decoder.DefaultWordpieceDecoder())

	return &WordPiece{tokenizer: tk, unknownID: unkID}, nil
}

func readVocab(path string) (model.Vocab, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening vocab: %w", err)
	}
	defer func() { _ = f.Close() }()

	vocab := make(model.Vocab)
	var specials []string
	scanner := bufio.NewScanner(f)
	for i := 0; scanner.Scan(); i++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		vocab[line] = i
		if len(line) > 2 && strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			specials = append(specials, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading vocab: %w", err)
	}
	return vocab, specials, nil
}

// Tokenize splits text into WordPiece pieces.
func (t *WordPiece) Tokenize(text string) (tokens []string, err error) {
	if text == "" {
		return nil, nil
	}

	// The BERT normalizer can panic on some inputs.
	defer func() {
		if r := recover(); r != nil {
			tokens, err = nil, fmt.Errorf("wordpiece tokenizer panic: %v", r)
		}
	}()

	enc, err := t.tokenizer.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	return enc.Tokens, nil
}

// ConvertTokensToIDs maps pieces to ids, using [UNK] for unknown pieces.
func (t *WordPiece) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, ok := t.tokenizer.TokenToId(tok)
		if !ok {
			id = t.unknownID
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode renders ids back to text.
func (t *WordPiece) Decode(ids []int) (string, error) {
	return t.tokenizer.Decode(ids, true), nil
}
