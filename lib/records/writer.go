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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
	"go.uber.org/zap"

	"github.com/antflydb/hatchery/lib/features"
)

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

type shardWriter struct {
	name    string
	file    *renameio.PendingFile
	hash    *xxhash.Digest
	size    *countingWriter
	zw      *zstd.Encoder
	mw      *msgp.Writer
	records int
}

func newShardWriter(path string) (*shardWriter, error) {
	f, err := renameio.TempFile("", path)
	if err != nil {
		return nil, fmt.Errorf("creating shard %s: %w", path, err)
	}
	s := &shardWriter{
		name: path,
		file: f,
		hash: xxhash.New(),
		size: &countingWriter{},
	}
	zw, err := zstd.NewWriter(io.MultiWriter(f, s.hash, s.size))
	if err != nil {
		_ = f.Cleanup()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	s.zw = zw
	s.mw = msgp.NewWriter(zw)
	return s, nil
}

// finish flushes the shard and atomically moves it into place.
func (s *shardWriter) finish() (ShardInfo, error) {
	if err := s.mw.Flush(); err != nil {
		return ShardInfo{}, fmt.Errorf("flushing shard %s: %w", s.name, err)
	}
	if err := s.zw.Close(); err != nil {
		return ShardInfo{}, fmt.Errorf("closing zstd stream of %s: %w", s.name, err)
	}
	if err := s.file.CloseAtomicallyReplace(); err != nil {
		return ShardInfo{}, fmt.Errorf("committing shard %s: %w", s.name, err)
	}
	return ShardInfo{
		File:     filepath.Base(s.name),
		Records:  s.records,
		Bytes:    s.size.n,
		Checksum: strconv.FormatUint(s.hash.Sum64(), 16),
	}, nil
}

func (s *shardWriter) abort() {
	_ = s.zw.Close()
	_ = s.file.Cleanup()
}

// Writer appends records round-robin across shards. Nothing is visible at
// the destination until Commit.
type Writer struct {
	path        string
	shards      []*shardWriter
	schema      features.Schema
	description string
	appended    int
	closed      bool
	logger      *zap.Logger
}

// Open creates a writer for the dataset at path. A shardCount below 1 is
// treated as 1.
func Open(path string, shardCount int, logger *zap.Logger) (*Writer, error) {
	if shardCount < 1 {
		shardCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{path: path, logger: logger}
	for i := range shardCount {
		s, err := newShardWriter(shardPath(path, i, shardCount))
		if err != nil {
			w.Abort()
			return nil, err
		}
		w.shards = append(w.shards, s)
	}
	return w, nil
}

// DeclareSchema sets the schema every appended record must match.
func (w *Writer) DeclareSchema(schema features.Schema, description string) error {
	if w.closed {
		return ErrClosed
	}
	if w.schema != nil {
		return fmt.Errorf("records: schema already declared")
	}
	if len(schema) == 0 {
		return fmt.Errorf("records: empty schema")
	}
	w.schema = schema
	w.description = description
	return nil
}

// Append validates and writes records in order.
func (w *Writer) Append(recs ...features.Record) error {
	if w.closed {
		return ErrClosed
	}
	if w.schema == nil {
		return ErrNoSchema
	}
	for _, rec := range recs {
		if err := w.schema.Conforms(rec); err != nil {
			return &SchemaMismatchError{Record: w.appended, Err: err}
		}
		s := w.shards[w.appended%len(w.shards)]
		if err := encodeRecord(s.mw, w.schema, rec); err != nil {
			return fmt.Errorf("writing record %d: %w", w.appended, err)
		}
		s.records++
		w.appended++
	}
	return nil
}

// Count is the number of records appended so far.
func (w *Writer) Count() int { return w.appended }

// Commit moves all shards into place and then writes the manifest.
func (w *Writer) Commit() (*Manifest, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if w.schema == nil {
		w.Abort()
		return nil, ErrNoSchema
	}
	w.closed = true

	m := &Manifest{
		Version:     manifestVersion,
		Description: w.description,
		Schema:      w.schema,
		Records:     w.appended,
		CreatedAt:   time.Now().UTC(),
	}
	for i, s := range w.shards {
		info, err := s.finish()
		if err != nil {
			for _, rest := range w.shards[i:] {
				rest.abort()
			}
			w.removeShards(i)
			return nil, err
		}
		m.Shards = append(m.Shards, info)
	}

	data, err := sonic.ConfigStd.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := renameio.WriteFile(w.path+ManifestSuffix, data, 0o644); err != nil {
		w.removeShards(len(w.shards))
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	w.logger.Debug("Committed records",
		zap.String("path", w.path),
		zap.Int("records", m.Records),
		zap.Int("shards", len(m.Shards)),
		zap.Int64("bytes", m.Bytes()))
	return m, nil
}

// Abort discards all pending shards. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	for _, s := range w.shards {
		s.abort()
	}
}

// removeShards deletes the first n shards, already moved into place by a
// commit that then failed.
func (w *Writer) removeShards(n int) {
	for _, s := range w.shards[:n] {
		if err := os.Remove(s.name); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Failed to remove shard of failed commit",
				zap.String("shard", s.name), zap.Error(err))
		}
	}
}

// encodeRecord writes rec as a map from field name to [dtype, shape, data].
func encodeRecord(mw *msgp.Writer, schema features.Schema, rec features.Record) error {
	if err := mw.WriteMapHeader(uint32(len(schema))); err != nil {
		return err
	}
	for _, f := range schema {
		t := rec[f.Name]
		if err := mw.WriteString(f.Name); err != nil {
			return err
		}
		if err := mw.WriteArrayHeader(3); err != nil {
			return err
		}
		if err := mw.WriteString(string(t.DType)); err != nil {
			return err
		}
		if err := mw.WriteArrayHeader(uint32(len(t.Shape))); err != nil {
			return err
		}
		for _, d := range t.Shape {
			if err := mw.WriteInt(d); err != nil {
				return err
			}
		}
		if err := mw.WriteArrayHeader(uint32(t.Len())); err != nil {
			return err
		}
		switch t.DType {
		case features.Int32:
			for _, v := range t.Int32s {
				if err := mw.WriteInt32(v); err != nil {
					return err
				}
			}
		case features.Int64:
			for _, v := range t.Int64s {
				if err := mw.WriteInt64(v); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("field %q: unsupported dtype %q", f.Name, t.DType)
		}
	}
	return nil
}
