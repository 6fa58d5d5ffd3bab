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
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long tokenized text stays cached.
const DefaultCacheTTL = 10 * time.Minute

// DefaultCacheCapacity bounds the number of cached texts.
const DefaultCacheCapacity = 100_000

// CachedTokenizer memoizes Tokenize results. GLUE inputs repeat often (MNLI
// premises, STS-B pairs), and parallel conversion would otherwise tokenize
// the same sentence concurrently.
type CachedTokenizer struct {
	Tokenizer

	cache   *ttlcache.Cache[string, []string]
	sfGroup singleflight.Group
	logger  *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// CacheStats holds cache statistics for a tokenizer.
type CacheStats struct {
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
	Items            int    `json:"items"`
}

// NewCachedTokenizer wraps tok with a TTL cache. Close stops the cache's
// expiry goroutine.
func NewCachedTokenizer(tok Tokenizer, ttl time.Duration, capacity uint64, logger *zap.Logger) *CachedTokenizer {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithCapacity[string, []string](capacity),
	)
	go cache.Start()

	return &CachedTokenizer{
		Tokenizer: tok,
		cache:     cache,
		logger:    logger,
	}
}

// Tokenize returns cached pieces for text, tokenizing on a miss. Callers must
// not modify the returned slice.
func (c *CachedTokenizer) Tokenize(text string) ([]string, error) {
	key := cacheKey(text)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		return item.Value(), nil
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		tokens, err := c.Tokenizer.Tokenize(text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, tokens, ttlcache.DefaultTTL)
		return tokens, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.sfHits.Add(1)
	}
	return result.([]string), nil
}

// Decode forwards to the wrapped tokenizer when it can decode.
func (c *CachedTokenizer) Decode(ids []int) (string, error) {
	if d, ok := c.Tokenizer.(Detokenizer); ok {
		return d.Decode(ids)
	}
	return "", ErrNoDecoder
}

// Stats returns cache statistics.
func (c *CachedTokenizer) Stats() CacheStats {
	return CacheStats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
		Items:            c.cache.Len(),
	}
}

// Close stops the cache and logs its final statistics.
func (c *CachedTokenizer) Close() {
	c.cache.Stop()
	stats := c.Stats()
	if stats.Hits > 0 || stats.Misses > 0 {
		c.logger.Debug("Tokenizer cache stats",
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Uint64("singleflight_hits", stats.SingleflightHits),
			zap.Int("items", stats.Items))
	}
}

func cacheKey(text string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64String(text))
	return string(buf[:])
}
