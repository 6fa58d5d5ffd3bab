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

package backends

import (
	"context"
)

// Model is the inference capability used by the decoding engine.
type Model interface {
	// Predict runs a single blocking forward pass. The context can be used
	// for cancellation; no timeout or retry is applied by callers.
	Predict(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error)

	// Close releases resources associated with the model.
	Close() error

	// Name returns the model name for logging and debugging.
	Name() string
}

// DecoderConfigProvider is implemented by models that can describe their own
// decoder settings. Use type assertion to access it from a Model:
//
//	if provider, ok := model.(DecoderConfigProvider); ok {
//	    config := provider.DecoderConfig()
//	}
type DecoderConfigProvider interface {
	DecoderConfig() *DecoderConfig
}

// ResolveDecoderConfig returns the model's own decoder config when it has
// one, falling back to the given config and finally to the defaults.
func ResolveDecoderConfig(model Model, fallback *DecoderConfig) *DecoderConfig {
	if provider, ok := model.(DecoderConfigProvider); ok {
		if config := provider.DecoderConfig(); config != nil {
			return config
		}
	}
	if fallback != nil {
		return fallback
	}
	return DefaultDecoderConfig()
}
