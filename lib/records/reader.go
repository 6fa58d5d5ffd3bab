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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"

	"github.com/antflydb/hatchery/lib/features"
)

// Reader reads a committed dataset back.
type Reader struct {
	path     string
	manifest *Manifest
}

// OpenReader loads the manifest of the dataset at path.
func OpenReader(path string) (*Reader, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	return &Reader{path: path, manifest: m}, nil
}

// Manifest returns the dataset's manifest.
func (r *Reader) Manifest() *Manifest { return r.manifest }

// ReadShard decodes every record in shard i after verifying its checksum.
func (r *Reader) ReadShard(i int) ([]features.Record, error) {
	if i < 0 || i >= len(r.manifest.Shards) {
		return nil, fmt.Errorf("shard %d out of range [0, %d)", i, len(r.manifest.Shards))
	}
	info := r.manifest.Shards[i]
	name := filepath.Join(filepath.Dir(r.path), info.File)

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading shard: %w", err)
	}
	if sum := strconv.FormatUint(xxhash.Sum64(data), 16); sum != info.Checksum {
		return nil, fmt.Errorf("%w: %s has %s, manifest says %s", ErrChecksumMismatch, info.File, sum, info.Checksum)
	}

	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	defer zr.Close()

	mr := msgp.NewReader(zr)
	recs := make([]features.Record, 0, info.Records)
	for n := range info.Records {
		rec, err := decodeRecord(mr)
		if err != nil {
			return nil, fmt.Errorf("decoding record %d of %s: %w", n, info.File, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ReadAll returns every record in append order.
func (r *Reader) ReadAll() ([]features.Record, error) {
	shards := make([][]features.Record, len(r.manifest.Shards))
	for i := range shards {
		recs, err := r.ReadShard(i)
		if err != nil {
			return nil, err
		}
		shards[i] = recs
	}

	out := make([]features.Record, 0, r.manifest.Records)
	for i := range r.manifest.Records {
		shard := shards[i%len(shards)]
		j := i / len(shards)
		if j >= len(shard) {
			return nil, fmt.Errorf("shard %d is short: want record %d, have %d", i%len(shards), j, len(shard))
		}
		out = append(out, shard[j])
	}
	return out, nil
}

func decodeRecord(mr *msgp.Reader) (features.Record, error) {
	fields, err := mr.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	rec := make(features.Record, fields)
	for range fields {
		name, err := mr.ReadString()
		if err != nil {
			return nil, err
		}
		t, err := decodeTensor(mr)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		rec[name] = t
	}
	return rec, nil
}

func decodeTensor(mr *msgp.Reader) (features.Tensor, error) {
	var t features.Tensor
	parts, err := mr.ReadArrayHeader()
	if err != nil {
		return t, err
	}
	if parts != 3 {
		return t, fmt.Errorf("tensor has %d parts, want 3", parts)
	}
	dtype, err := mr.ReadString()
	if err != nil {
		return t, err
	}
	t.DType = features.DType(dtype)

	dims, err := mr.ReadArrayHeader()
	if err != nil {
		return t, err
	}
	t.Shape = make([]int, dims)
	for i := range t.Shape {
		if t.Shape[i], err = mr.ReadInt(); err != nil {
			return t, err
		}
	}

	n, err := mr.ReadArrayHeader()
	if err != nil {
		return t, err
	}
	switch t.DType {
	case features.Int32:
		t.Int32s = make([]int32, n)
		for i := range t.Int32s {
			if t.Int32s[i], err = mr.ReadInt32(); err != nil {
				return t, err
			}
		}
	case features.Int64:
		t.Int64s = make([]int64, n)
		for i := range t.Int64s {
			if t.Int64s[i], err = mr.ReadInt64(); err != nil {
				return t, err
			}
		}
	default:
		return t, fmt.Errorf("unsupported dtype %q", dtype)
	}
	return t, nil
}
