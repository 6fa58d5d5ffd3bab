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

// Package hatchery prepares GLUE-style benchmark data for model training and
// samples text from autoregressive language models.
//
// BuildRecords reads a task's TSV splits, converts every example into a
// fixed-shape feature record (classification, translation or generative
// layout) and writes sharded, checksummed record files. RunGeneration drives
// a remote predict server through the top-k / nucleus sampling loop in
// lib/pipelines.
package hatchery

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
