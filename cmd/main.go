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

// Command hatchery prepares GLUE benchmark data for training and samples
// text from language models served over HTTP.
//
// Usage:
//
//	hatchery records --task mrpc --vocab vocab.txt --input-dir glue_data --output-dir out --do-train
//	hatchery generate --model-url http://localhost:8500 --tokenizer-path model/ --prompt "..."
//	hatchery tasks                 # List supported tasks and formats
package main

import (
	"runtime"

	"github.com/antflydb/hatchery"
	"github.com/antflydb/hatchery/cmd/cmd"
)

// https://goreleaser.com/cookbooks/using-main.version/
//
// main.version: Current Git tag (the v prefix is stripped) or the name of the snapshot
var version = "dev"

func main() {
	runtime.SetMutexProfileFraction(1) // Enable mutex profiling
	runtime.SetBlockProfileRate(1)     // Sample every blocking event
	hatchery.Version = version
	cmd.Version = version
	cmd.Execute()
}
