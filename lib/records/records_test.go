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

package records

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/hatchery/lib/features"
)

var testSchema = features.Schema{
	{Name: "input_ids", DType: features.Int64, Shape: []int{4}},
	{Name: "mask", DType: features.Int32, Shape: []int{2, 2}},
}

func testRecord(i int64) features.Record {
	return features.Record{
		"input_ids": features.Int64Tensor([]int64{i, i + 1, i + 2, 0}),
		"mask":      features.Int32Tensor([]int32{1, int32(i), 0, 1}, 2, 2),
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		shards int
		files  []string
	}{
		{name: "single shard", shards: 1, files: []string{"cola_train.records"}},
		{name: "zero means one", shards: 0, files: []string{"cola_train.records"}},
		{name: "three shards", shards: 3, files: []string{"cola_train.records0", "cola_train.records1", "cola_train.records2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cola_train.records")

			w, err := Open(path, tt.shards, nil)
			require.NoError(t, err)
			require.NoError(t, w.DeclareSchema(testSchema, "Preprocessed dataset"))

			exists, err := Exists(path)
			require.NoError(t, err)
			assert.False(t, exists)

			var want []features.Record
			for i := range int64(7) {
				rec := testRecord(i)
				want = append(want, rec)
				require.NoError(t, w.Append(rec))
			}
			assert.Equal(t, 7, w.Count())

			m, err := w.Commit()
			require.NoError(t, err)
			assert.Equal(t, 7, m.Records)
			require.Len(t, m.Shards, len(tt.files))
			for i, f := range tt.files {
				assert.Equal(t, f, m.Shards[i].File)
				assert.FileExists(t, filepath.Join(filepath.Dir(path), f))
			}

			exists, err = Exists(path)
			require.NoError(t, err)
			assert.True(t, exists)

			r, err := OpenReader(path)
			require.NoError(t, err)
			assert.Equal(t, testSchema, r.Manifest().Schema)
			assert.Equal(t, "Preprocessed dataset", r.Manifest().Description)
			assert.Positive(t, r.Manifest().Bytes())

			got, err := r.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestWriter_RoundRobin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.records")
	w, err := Open(path, 2, nil)
	require.NoError(t, err)
	require.NoError(t, w.DeclareSchema(testSchema, ""))
	require.NoError(t, w.Append(testRecord(0), testRecord(1), testRecord(2)))
	m, err := w.Commit()
	require.NoError(t, err)

	assert.Equal(t, 2, m.Shards[0].Records)
	assert.Equal(t, 1, m.Shards[1].Records)

	r, err := OpenReader(path)
	require.NoError(t, err)
	shard0, err := r.ReadShard(0)
	require.NoError(t, err)
	require.Len(t, shard0, 2)
	assert.Equal(t, []int64{2, 3, 4, 0}, shard0[1]["input_ids"].Int64s)

	_, err = r.ReadShard(5)
	require.Error(t, err)
}

func TestWriter_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.records")
	w, err := Open(path, 1, nil)
	require.NoError(t, err)
	defer w.Abort()

	require.ErrorIs(t, w.Append(testRecord(0)), ErrNoSchema)
	require.NoError(t, w.DeclareSchema(testSchema, ""))
	require.Error(t, w.DeclareSchema(testSchema, ""))

	require.NoError(t, w.Append(testRecord(0)))
	bad := features.Record{
		"input_ids": features.Int64Tensor([]int64{1, 2, 3}),
		"mask":      features.Int32Tensor([]int32{1, 0, 0, 1}, 2, 2),
	}
	err = w.Append(bad)
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Record)
	assert.Equal(t, 1, w.Count())
}

func TestWriter_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.records")
	w, err := Open(path, 2, nil)
	require.NoError(t, err)
	require.NoError(t, w.DeclareSchema(testSchema, ""))
	require.NoError(t, w.Append(testRecord(0)))
	w.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = w.Commit()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Append(testRecord(1)), ErrClosed)
}

func TestWriter_FailedCommitRemovesShards(t *testing.T) {
	tests := []struct {
		name    string
		blocker func(path string) string
	}{
		{name: "second shard", blocker: func(path string) string { return path + "1" }},
		{name: "manifest", blocker: func(path string) string { return path + ManifestSuffix }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "data.records")
			w, err := Open(path, 2, nil)
			require.NoError(t, err)
			require.NoError(t, w.DeclareSchema(testSchema, ""))
			require.NoError(t, w.Append(testRecord(0), testRecord(1)))

			// A non-empty directory at the destination makes the rename fail.
			blocker := tt.blocker(path)
			require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

			_, err = w.Commit()
			require.Error(t, err)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, filepath.Base(blocker), entries[0].Name())
		})
	}
}

func TestReader_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.records")
	w, err := Open(path, 1, nil)
	require.NoError(t, err)
	require.NoError(t, w.DeclareSchema(testSchema, ""))
	require.NoError(t, w.Append(testRecord(0)))
	_, err = w.Commit()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenReader(path)
	require.NoError(t, err)
	_, err = r.ReadAll()
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "nope.records"))
	require.Error(t, err)
}
