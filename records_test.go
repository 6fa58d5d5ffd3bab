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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/antflydb/hatchery/lib/glue"
	"github.com/antflydb/hatchery/lib/records"
	"github.com/antflydb/hatchery/lib/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wordTokenizer maps "wN" to id 1000+N and the framing tokens to fixed ids.
type wordTokenizer struct{}

func (wordTokenizer) Tokenize(text string) ([]string, error) {
	return strings.Fields(text), nil
}

func (wordTokenizer) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		switch {
		case tok == "[CLS]":
			ids[i] = 101
		case tok == "[SEP]":
			ids[i] = 102
		case strings.HasPrefix(tok, "w"):
			n, err := strconv.Atoi(tok[1:])
			if err != nil {
				return nil, err
			}
			ids[i] = 1000 + n
		default:
			ids[i] = 1
		}
	}
	return ids, nil
}

func (wordTokenizer) Decode(ids []int) (string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = fmt.Sprintf("w%d", id-1000)
	}
	return strings.Join(words, " "), nil
}

func writeSST2(t *testing.T, root string, n int) {
	t.Helper()
	dir := filepath.Join(root, "SST-2")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	lines := []string{"sentence\tlabel"}
	for i := range n {
		lines = append(lines, fmt.Sprintf("w%d\t%d", i, i%2))
	}
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.tsv"), []byte(content), 0o644))
}

func sst2Config(root string) RecordsConfig {
	cfg := DefaultRecordsConfig()
	cfg.Task = "sst-2"
	cfg.InputDir = root
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.MaxSeqLength = 8
	cfg.DoTrain = true
	return cfg
}

func TestBuildRecords_ValidatesBeforeIO(t *testing.T) {
	tests := []struct {
		name    string
		task    string
		format  string
		wantErr error
	}{
		{name: "unknown task", task: "squad", format: "bert", wantErr: ErrUnsupportedTask},
		{name: "unknown format", task: "cola", format: "xlnet", wantErr: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			cfg := sst2Config(root)
			cfg.Task = tt.task
			cfg.Format = tt.format
			cfg.Tokenizer.Path = filepath.Join(root, "missing")

			_, err := BuildRecords(context.Background(), zap.NewNop(), cfg)
			require.ErrorIs(t, err, tt.wantErr)

			_, statErr := os.Stat(cfg.OutputDir)
			assert.True(t, os.IsNotExist(statErr), "output dir must not be created")
		})
	}
}

func TestBuildRecords_TokenizerLoadError(t *testing.T) {
	root := t.TempDir()
	cfg := sst2Config(root)
	cfg.Tokenizer.Path = filepath.Join(root, "missing")

	_, err := BuildRecords(context.Background(), zap.NewNop(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading tokenizer")
}

func TestBuildRecords_PreservesOrderAcrossWorkers(t *testing.T) {
	root := t.TempDir()
	writeSST2(t, root, 50)

	cfg := sst2Config(root)
	cfg.Workers = 8
	cfg.ShardNum = 3
	cfg.BatchSize = 8

	reports, err := BuildRecordsWithTokenizer(context.Background(), zap.NewNop(), cfg, wordTokenizer{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, glue.Train, report.Split)
	assert.False(t, report.Skipped)
	assert.Equal(t, 50, report.Examples)
	assert.Equal(t, 6, report.Padding)
	assert.Equal(t, 56, report.Records)
	assert.Positive(t, report.Bytes)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "sst-2_train.records"), report.Path)

	r, err := records.OpenReader(report.Path)
	require.NoError(t, err)
	assert.Len(t, r.Manifest().Shards, 3)

	recs, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 56)
	for i := range 50 {
		ids := recs[i]["input_ids"].Int64s
		require.Len(t, ids, 8)
		assert.Equal(t, []int64{101, int64(1000 + i), 102}, ids[:3], "record %d", i)
		assert.Equal(t, []int64{int64(i % 2)}, recs[i]["label_ids"].Int64s)
		assert.Equal(t, []int64{1}, recs[i]["is_real_example"].Int64s)
	}
	for _, rec := range recs[50:] {
		assert.Equal(t, make([]int64, 8), rec["input_ids"].Int64s)
		assert.Equal(t, []int64{0}, rec["is_real_example"].Int64s)
	}
}

func TestBuildRecords_SkipsExistingOutput(t *testing.T) {
	root := t.TempDir()
	writeSST2(t, root, 4)
	cfg := sst2Config(root)

	first, err := BuildRecordsWithTokenizer(context.Background(), zap.NewNop(), cfg, wordTokenizer{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	before, err := records.ReadManifest(first[0].Path)
	require.NoError(t, err)

	writeSST2(t, root, 10)
	second, err := BuildRecordsWithTokenizer(context.Background(), zap.NewNop(), cfg, wordTokenizer{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].Skipped)
	assert.Zero(t, second[0].Records)

	after, err := records.ReadManifest(first[0].Path)
	require.NoError(t, err)
	assert.Equal(t, 4, after.Records)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestBuildRecords_ErrorsLeaveNoOutput(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "SST-2")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "sentence\tlabel\nw1\t1\nw2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.tsv"), []byte(content), 0o644))

	cfg := sst2Config(root)
	_, err := BuildRecordsWithTokenizer(context.Background(), zap.NewNop(), cfg, wordTokenizer{})
	var short *glue.RowTooShortError
	require.ErrorAs(t, err, &short)

	exists, err := records.Exists(filepath.Join(cfg.OutputDir, "sst-2_train.records"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuildRecords_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeSST2(t, root, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildRecordsWithTokenizer(ctx, zap.NewNop(), sst2Config(root), wordTokenizer{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildRecords_LowerCase(t *testing.T) {
	tests := []struct {
		name  string
		lower bool
		want  int64
	}{
		{name: "lowercased", lower: true, want: 1007},
		{name: "case kept", lower: false, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "SST-2")
			require.NoError(t, os.MkdirAll(dir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "train.tsv"), []byte("sentence\tlabel\nW7\t1\n"), 0o644))

			cfg := sst2Config(root)
			cfg.DoLowerCase = tt.lower
			reports, err := BuildRecordsWithTokenizer(context.Background(), zap.NewNop(), cfg, wordTokenizer{})
			require.NoError(t, err)

			recs, err := records.OpenReader(reports[0].Path)
			require.NoError(t, err)
			all, err := recs.ReadAll()
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, tt.want, all[0]["input_ids"].Int64s[1])
		})
	}
}

func TestTextNormalizer_PerTokenizer(t *testing.T) {
	tests := []struct {
		name string
		tok  tokenizer.Tokenizer
		want glue.TextNormalizer
	}{
		{name: "wordpiece lowercases itself", tok: &tokenizer.WordPiece{}, want: glue.TextNormalizer{}},
		{name: "sentencepiece", tok: &tokenizer.SentencePiece{}, want: glue.TextNormalizer{DoLowerCase: true, UseSentencePiece: true}},
		{name: "bpe", tok: &tokenizer.BPE{}, want: glue.TextNormalizer{DoLowerCase: true}},
		{name: "huggingface", tok: &tokenizer.HuggingFace{}, want: glue.TextNormalizer{DoLowerCase: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textNormalizer(tt.tok, true))
		})
	}
}

func TestRecordsConfig_Splits(t *testing.T) {
	cfg := RecordsConfig{DoPredict: true, DoTrain: true}
	assert.Equal(t, []glue.Split{glue.Train, glue.Test}, cfg.Splits())

	cfg.DoEval = true
	assert.Equal(t, []glue.Split{glue.Train, glue.Dev, glue.Test}, cfg.Splits())
	assert.Empty(t, RecordsConfig{}.Splits())
}
