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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodec splits on spaces and assigns ids from a fixed vocabulary.
type fakeCodec struct {
	vocab map[string]int
}

func (c *fakeCodec) encode(text string) ([]int, []string) {
	pieces := strings.Fields(text)
	ids := make([]int, 0, len(pieces))
	kept := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if id, ok := c.vocab[p]; ok {
			ids = append(ids, id)
			kept = append(kept, p)
		}
	}
	return ids, kept
}

func (c *fakeCodec) decode(ids []int) string {
	words := make([]string, len(ids))
	for i, id := range ids {
		for w, v := range c.vocab {
			if v == id {
				words[i] = w
			}
		}
	}
	return strings.Join(words, " ")
}

func TestPieceIndex(t *testing.T) {
	codec := &fakeCodec{vocab: map[string]int{"<unk>": 0, "hello": 4, "world": 5, "[CLS]": 9}}

	t.Run("round trip", func(t *testing.T) {
		p := newPieceIndex(codec, 0)
		tokens, err := p.Tokenize("hello world")
		require.NoError(t, err)
		assert.Equal(t, []string{"hello", "world"}, tokens)

		ids, err := p.ConvertTokensToIDs(tokens)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5}, ids)

		text, err := p.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})

	t.Run("unseen piece encoded alone", func(t *testing.T) {
		p := newPieceIndex(codec, 0)
		ids, err := p.ConvertTokensToIDs([]string{"[CLS]"})
		require.NoError(t, err)
		assert.Equal(t, []int{9}, ids)
	})

	t.Run("unknown falls back", func(t *testing.T) {
		p := newPieceIndex(codec, 0)
		ids, err := p.ConvertTokensToIDs([]string{"nope"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, ids)
	})

	t.Run("unknown without fallback", func(t *testing.T) {
		p := newPieceIndex(codec, -1)
		_, err := p.ConvertTokensToIDs([]string{"nope"})
		require.ErrorIs(t, err, ErrUnknownToken)
	})

	t.Run("empty text", func(t *testing.T) {
		p := newPieceIndex(codec, 0)
		tokens, err := p.Tokenize("")
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})
}

func writeVocab(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vocab.txt")
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "hello", "world", "##s", "!"}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(vocab, "\n")+"\n"), 0o644))
	return path
}

func TestWordPiece(t *testing.T) {
	path := writeVocab(t, t.TempDir())
	wp, err := NewWordPiece(path, true)
	require.NoError(t, err)

	tokens, err := wp.Tokenize("Hello worlds!")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world", "##s", "!"}, tokens)

	ids, err := wp.ConvertTokensToIDs([]string{"[CLS]", "hello", "world", "[SEP]", "zebra"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5, 3, 1}, ids)

	empty, err := wp.Tokenize("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWordPiece_RequiresUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("[PAD]\nhello\n"), 0o644))

	_, err := NewWordPiece(path, true)
	require.Error(t, err)
}

func TestBPE(t *testing.T) {
	bpe, err := NewBPE("")
	require.NoError(t, err)

	tokens, err := bpe.Tokenize("hello world")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
	assert.Equal(t, "hello world", strings.Join(tokens, ""))

	ids, err := bpe.ConvertTokensToIDs(tokens)
	require.NoError(t, err)
	text, err := bpe.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = NewBPE("not_an_encoding")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir)

	tok, err := Load(Config{Path: dir, Lowercase: true})
	require.NoError(t, err)
	assert.IsType(t, &WordPiece{}, tok)

	tok, err = Load(Config{Kind: KindBPE})
	require.NoError(t, err)
	assert.IsType(t, &BPE{}, tok)

	_, err = Load(Config{Kind: "morse"})
	require.Error(t, err)

	_, err = LoadDir(t.TempDir(), true)
	require.Error(t, err)
}

type countingTokenizer struct {
	calls atomic.Int32
}

func (c *countingTokenizer) Tokenize(text string) ([]string, error) {
	c.calls.Add(1)
	return strings.Fields(text), nil
}

func (c *countingTokenizer) ConvertTokensToIDs(tokens []string) ([]int, error) {
	return make([]int, len(tokens)), nil
}

func TestCachedTokenizer(t *testing.T) {
	inner := &countingTokenizer{}
	cached := NewCachedTokenizer(inner, 0, 0, nil)
	defer cached.Close()

	for range 3 {
		tokens, err := cached.Tokenize("a b c")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, tokens)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	stats := cached.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)

	ids, err := cached.ConvertTokensToIDs([]string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = cached.Decode([]int{1})
	require.ErrorIs(t, err, ErrNoDecoder)
}

func TestCachedTokenizer_Concurrent(t *testing.T) {
	inner := &countingTokenizer{}
	cached := NewCachedTokenizer(inner, 0, 0, nil)
	defer cached.Close()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := []string{"x y", "y z"}[i%2]
			tokens, err := cached.Tokenize(text)
			assert.NoError(t, err)
			assert.Len(t, tokens, 2)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int32(32))
	assert.Equal(t, 2, cached.Stats().Items)
}
