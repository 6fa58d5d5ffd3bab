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
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/antflydb/hatchery/lib/backends"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// idTokenizer maps "tN" to id N.
type idTokenizer struct{}

func (idTokenizer) Tokenize(text string) ([]string, error) {
	return strings.Fields(text), nil
}

func (idTokenizer) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "t"))
		if err != nil {
			return nil, err
		}
		ids[i] = n
	}
	return ids, nil
}

func (idTokenizer) Decode(ids []int) (string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = "t" + strconv.Itoa(id)
	}
	return strings.Join(words, " "), nil
}

// predictServer emits token 3 until current_index reaches eosAt, then EOS 9.
func predictServer(t *testing.T, withConfig bool, eosAt int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/config":
			if !withConfig {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"vocab_size":10,"max_length":8,"max_decode_length":8,"eos_token_id":9}`))
		case "/predict":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var in backends.ModelInputs
			require.NoError(t, sonic.Unmarshal(body, &in))

			next := 3
			if in.CurrentIndex >= eosAt {
				next = 9
			}
			logits := make([]string, 10)
			for i := range logits {
				logits[i] = "0"
			}
			logits[next] = "50"
			_, _ = fmt.Fprintf(w, `{"logits":[%s]}`, strings.Join(logits, ","))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func greedyGenerateConfig(url string) GenerateConfig {
	cfg := DefaultGenerateConfig()
	cfg.ModelURL = url
	cfg.ModelName = "stub"
	cfg.Prompt = "t5 t7"
	cfg.Generation = backends.GenerationConfig{MaxNewTokens: 10, TopK: 1, TopP: 1, Seed: 1}
	return cfg
}

func TestRunGeneration_StopsAtEOS(t *testing.T) {
	srv := predictServer(t, true, 3)

	out, err := RunGenerationWithTokenizer(context.Background(), zap.NewNop(), greedyGenerateConfig(srv.URL), idTokenizer{})
	require.NoError(t, err)

	assert.Equal(t, []int32{5, 7}, out.PromptIDs)
	assert.Equal(t, []int32{5, 7, 3, 3}, out.TokenIDs)
	assert.True(t, out.Result.StoppedAtEOS)
	assert.Equal(t, 2, out.Result.NewTokens)
	assert.Equal(t, 3, out.Result.ModelCalls)
	assert.Equal(t, "t5 t7 t3 t3", out.Text)
	assert.Equal(t, "t3 t3", out.Completion)
}

func TestRunGeneration_ServerMaxLength(t *testing.T) {
	srv := predictServer(t, true, 100)

	out, err := RunGenerationWithTokenizer(context.Background(), zap.NewNop(), greedyGenerateConfig(srv.URL), idTokenizer{})
	require.NoError(t, err)

	// max_length 8 from /config caps the output; the final step is dropped.
	assert.Equal(t, []int32{5, 7, 3, 3, 3, 3, 3}, out.TokenIDs)
	assert.False(t, out.Result.StoppedAtEOS)
}

func TestRunGeneration_FallbackDecoderConfig(t *testing.T) {
	srv := predictServer(t, false, 100)

	cfg := greedyGenerateConfig(srv.URL)
	cfg.Decoder = &backends.DecoderConfig{VocabSize: 10, MaxLength: 4, MaxDecodeLength: 4, EOSTokenID: 9}

	out, err := RunGenerationWithTokenizer(context.Background(), zap.NewNop(), cfg, idTokenizer{})
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 7, 3}, out.TokenIDs)
}

func TestRunGeneration_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/config" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer failing.Close()

	tests := []struct {
		name  string
		cfg   func() GenerateConfig
		check func(t *testing.T, err error)
	}{
		{
			name: "bad prompt token",
			cfg: func() GenerateConfig {
				cfg := greedyGenerateConfig(failing.URL)
				cfg.Prompt = "hello"
				return cfg
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "converting prompt tokens")
			},
		},
		{
			name: "missing model url",
			cfg: func() GenerateConfig {
				cfg := greedyGenerateConfig("")
				return cfg
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "base URL is required")
			},
		},
		{
			name: "model failure",
			cfg: func() GenerateConfig {
				cfg := greedyGenerateConfig(failing.URL)
				cfg.Decoder = &backends.DecoderConfig{VocabSize: 10, MaxLength: 8, EOSTokenID: 9}
				return cfg
			},
			check: func(t *testing.T, err error) {
				var status *backends.StatusError
				require.ErrorAs(t, err, &status)
				assert.Equal(t, http.StatusInternalServerError, status.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunGenerationWithTokenizer(context.Background(), zap.NewNop(), tt.cfg(), idTokenizer{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
