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

// Package records stores feature records as sharded, compressed msgpack
// files described by a JSON manifest.
//
// A dataset at path consists of shard files and path + ".manifest.json". The
// manifest is written last, so its presence marks a committed dataset.
package records

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/antflydb/hatchery/lib/features"
)

// ManifestSuffix is appended to a dataset path to name its manifest.
const ManifestSuffix = ".manifest.json"

const manifestVersion = 1

var (
	// ErrNoSchema is returned when records are appended before DeclareSchema.
	ErrNoSchema = errors.New("records: schema not declared")
	// ErrClosed is returned when a committed or aborted writer is used.
	ErrClosed = errors.New("records: writer closed")
	// ErrChecksumMismatch is returned when a shard's bytes do not match the manifest.
	ErrChecksumMismatch = errors.New("records: shard checksum mismatch")
)

// SchemaMismatchError reports a record that does not match the declared schema.
type SchemaMismatchError struct {
	Record int
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("record %d does not match schema: %v", e.Record, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// ShardInfo describes one committed shard file.
type ShardInfo struct {
	File     string `json:"file"`
	Records  int    `json:"records"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"xxhash64"`
}

// Manifest describes a committed dataset.
type Manifest struct {
	Version     int             `json:"version"`
	Description string          `json:"description"`
	Schema      features.Schema `json:"schema"`
	Records     int             `json:"records"`
	Shards      []ShardInfo     `json:"shards"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Bytes is the total size of all shards.
func (m *Manifest) Bytes() int64 {
	var n int64
	for _, s := range m.Shards {
		n += s.Bytes
	}
	return n
}

// Exists reports whether a committed dataset exists at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path + ManifestSuffix)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadManifest loads the manifest of the dataset at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path + ManifestSuffix)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

func shardPath(path string, index, count int) string {
	if count == 1 {
		return path
	}
	return fmt.Sprintf("%s%d", path, index)
}
