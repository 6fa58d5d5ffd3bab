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

import "github.com/prometheus/client_golang/prometheus"

var (
	examplesConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "examples_converted_total",
			Help:      "The total number of examples converted to feature records.",
		},
		[]string{"task", "format"},
	)
	recordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "records_written_total",
			Help:      "The total number of records committed to record files.",
		},
		[]string{"task", "split"},
	)
	recordBytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "record_bytes_written_total",
			Help:      "The total number of compressed shard bytes committed.",
		},
		[]string{"task", "split"},
	)
	truncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "truncations_total",
			Help:      "The total number of examples whose tokens were truncated to fit.",
		},
		[]string{"task", "format"},
	)
	conversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "split_conversion_duration_seconds",
			Help:      "Time spent converting and writing one split.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"task", "split"},
	)

	// Cache metrics
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		},
		[]string{"type"}, // tokenizer
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		},
		[]string{"type"},
	)

	generatorRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "generator_request_ops_total",
			Help:      "The total number of generation requests.",
		},
		[]string{"model"},
	)
	decodeSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "decode_steps_total",
			Help:      "The total number of sampling steps run.",
		},
		[]string{"model"},
	)
	tokenGenerationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "token_generation_ops_total",
			Help:      "The total number of tokens generated.",
		},
		[]string{"model"},
	)
	modelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "hatchery",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of a single model predict call.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model", "status"},
	)
)

func init() {
	prometheus.MustRegister(examplesConverted)
	prometheus.MustRegister(recordsWritten)
	prometheus.MustRegister(recordBytesWritten)
	prometheus.MustRegister(truncations)
	prometheus.MustRegister(conversionDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(generatorRequestOps)
	prometheus.MustRegister(decodeSteps)
	prometheus.MustRegister(tokenGenerationOps)
	prometheus.MustRegister(modelCallDuration)
}

// RecordExamplesConverted adds count converted examples for a task and format
func RecordExamplesConverted(task, format string, count int) {
	examplesConverted.WithLabelValues(task, format).Add(float64(count))
}

// RecordSplitWritten records the records and bytes committed for one split
func RecordSplitWritten(task, split string, records int, bytes int64, seconds float64) {
	recordsWritten.WithLabelValues(task, split).Add(float64(records))
	recordBytesWritten.WithLabelValues(task, split).Add(float64(bytes))
	conversionDuration.WithLabelValues(task, split).Observe(seconds)
}

// RecordTruncations adds count truncated examples
func RecordTruncations(task, format string, count uint64) {
	truncations.WithLabelValues(task, format).Add(float64(count))
}

// RecordCacheHits adds count cache hits
func RecordCacheHits(cacheType string, count uint64) {
	cacheHits.WithLabelValues(cacheType).Add(float64(count))
}

// RecordCacheMisses adds count cache misses
func RecordCacheMisses(cacheType string, count uint64) {
	cacheMisses.WithLabelValues(cacheType).Add(float64(count))
}

// RecordGeneratorRequest increments the generator request counter
func RecordGeneratorRequest(model string) {
	generatorRequestOps.WithLabelValues(model).Inc()
}

// RecordGeneration records the steps run and tokens committed by one generation
func RecordGeneration(model string, steps, tokens int) {
	decodeSteps.WithLabelValues(model).Add(float64(steps))
	tokenGenerationOps.WithLabelValues(model).Add(float64(tokens))
}

// RecordModelCallDuration records how long a predict call took
func RecordModelCallDuration(model, status string, seconds float64) {
	modelCallDuration.WithLabelValues(model, status).Observe(seconds)
}
