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
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/antflydb/hatchery/lib/features"
	"github.com/antflydb/hatchery/lib/glue"
	"github.com/antflydb/hatchery/lib/records"
	"github.com/antflydb/hatchery/lib/tokenizer"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// progressEvery is how often, in examples, conversion progress is logged.
const progressEvery = 10000

var (
	// ErrUnsupportedTask is returned for task names with no registered processor.
	ErrUnsupportedTask = glue.ErrUnknownTask
	// ErrUnsupportedFormat is returned for unknown record formats.
	ErrUnsupportedFormat = features.ErrUnsupportedFormat
)

// RecordsConfig configures BuildRecords.
type RecordsConfig struct {
	Task   string `mapstructure:"task" yaml:"task"`
	Format string `mapstructure:"format" yaml:"format"`

	InputDir  string `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	Tokenizer tokenizer.Config `mapstructure:"tokenizer" yaml:"tokenizer"`
	// DoLowerCase lowercases input text for every tokenizer kind. WordPiece
	// applies it in its own normalizer.
	DoLowerCase bool `mapstructure:"do_lower_case" yaml:"do_lower_case"`

	MaxSeqLength int `mapstructure:"max_seq_length" yaml:"max_seq_length"`
	SrcSeqLength int `mapstructure:"src_seq_length" yaml:"src_seq_length"`
	TgtSeqLength int `mapstructure:"tgt_seq_length" yaml:"tgt_seq_length"`

	ShardNum int `mapstructure:"shard_num" yaml:"shard_num"`

	DoTrain   bool `mapstructure:"do_train" yaml:"do_train"`
	DoEval    bool `mapstructure:"do_eval" yaml:"do_eval"`
	DoPredict bool `mapstructure:"do_pred" yaml:"do_pred"`

	// BatchSize pads each split with padding examples to a multiple of it.
	// Values below 2 disable padding.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// Workers bounds parallel conversion. Zero means one.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// TasksFile is an optional TOML file of extra task definitions.
	TasksFile string `mapstructure:"tasks_file" yaml:"tasks_file"`
	// Progress renders a progress bar to ProgressWriter (stderr when nil).
	Progress       bool      `mapstructure:"progress" yaml:"progress"`
	ProgressWriter io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultRecordsConfig returns the defaults used by the CLI.
func DefaultRecordsConfig() RecordsConfig {
	return RecordsConfig{
		Format:       string(features.Classification),
		MaxSeqLength: 128,
		SrcSeqLength: 128,
		TgtSeqLength: 32,
		ShardNum:     1,
		DoLowerCase:  true,
		Workers:      1,
	}
}

// Splits returns the enabled splits in train, dev, test order.
func (c RecordsConfig) Splits() []glue.Split {
	var splits []glue.Split
	if c.DoTrain {
		splits = append(splits, glue.Train)
	}
	if c.DoEval {
		splits = append(splits, glue.Dev)
	}
	if c.DoPredict {
		splits = append(splits, glue.Test)
	}
	return splits
}

// SplitReport summarizes one split handled by BuildRecords.
type SplitReport struct {
	Split glue.Split
	Path  string
	// Skipped is set when the output already existed and nothing was written.
	Skipped     bool
	Examples    int
	Padding     int
	Records     int
	Truncations uint64
	Bytes       int64
	Duration    time.Duration
}

// BuildRecords converts the enabled splits of a task into record files under
// cfg.OutputDir. The task and format are validated before any file is read
// or written. Existing outputs are skipped, never overwritten.
func BuildRecords(ctx context.Context, logger *zap.Logger, cfg RecordsConfig) ([]SplitReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	spec, format, err := resolveTask(logger, cfg)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(tokenizerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}
	return buildRecords(ctx, logger, cfg, spec, format, tok)
}

// BuildRecordsWithTokenizer is BuildRecords with a caller-supplied tokenizer.
// cfg.Tokenizer is ignored.
func BuildRecordsWithTokenizer(ctx context.Context, logger *zap.Logger, cfg RecordsConfig, tok tokenizer.Tokenizer) ([]SplitReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	spec, format, err := resolveTask(logger, cfg)
	if err != nil {
		return nil, err
	}
	return buildRecords(ctx, logger, cfg, spec, format, tok)
}

func resolveTask(logger *zap.Logger, cfg RecordsConfig) (glue.TaskSpec, features.Format, error) {
	if cfg.TasksFile != "" {
		names, err := glue.RegisterTasksFile(cfg.TasksFile)
		if err != nil {
			return glue.TaskSpec{}, "", err
		}
		logger.Info("Registered tasks from file",
			zap.String("file", cfg.TasksFile),
			zap.Strings("tasks", names))
	}
	spec, err := glue.LookupTask(cfg.Task)
	if err != nil {
		return glue.TaskSpec{}, "", err
	}
	format, err := features.ParseFormat(cfg.Format)
	if err != nil {
		return glue.TaskSpec{}, "", err
	}
	return spec, format, nil
}

func tokenizerConfig(cfg RecordsConfig) tokenizer.Config {
	tc := cfg.Tokenizer
	tc.Lowercase = cfg.DoLowerCase
	return tc
}

func buildRecords(ctx context.Context, logger *zap.Logger, cfg RecordsConfig, spec glue.TaskSpec, format features.Format, tok tokenizer.Tokenizer) ([]SplitReport, error) {
	splits := cfg.Splits()
	if len(splits) == 0 {
		logger.Warn("No splits enabled, nothing to do", zap.String("task", spec.Name))
		return nil, nil
	}

	cached := tokenizer.NewCachedTokenizer(tok, tokenizer.DefaultCacheTTL, tokenizer.DefaultCacheCapacity, logger.Named("tokenizer"))
	defer func() {
		stats := cached.Stats()
		RecordCacheHits("tokenizer", stats.Hits)
		RecordCacheMisses("tokenizer", stats.Misses)
		cached.Close()
	}()

	conv, err := features.New(format, cached, features.Options{
		Task:         spec,
		MaxSeqLength: cfg.MaxSeqLength,
		SrcSeqLength: cfg.SrcSeqLength,
		TgtSeqLength: cfg.TgtSeqLength,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	proc := glue.NewProcessorFromSpec(spec, textNormalizer(tok, cfg.DoLowerCase), logger.Named("glue"))

	b := &splitBuilder{
		cfg:    cfg,
		logger: logger,
		proc:   proc,
		conv:   conv,
	}
	reports := make([]SplitReport, 0, len(splits))
	for _, split := range splits {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := b.build(ctx, split)
		if err != nil {
			return reports, fmt.Errorf("%s %s: %w", spec.Name, split, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// textNormalizer picks the preprocessing for tok. WordPiece lowercases
// inside its own normalizer, so the text is left alone for it.
func textNormalizer(tok tokenizer.Tokenizer, lower bool) glue.TextNormalizer {
	switch tok.(type) {
	case *tokenizer.WordPiece:
		return glue.TextNormalizer{}
	case *tokenizer.SentencePiece:
		return glue.TextNormalizer{DoLowerCase: lower, UseSentencePiece: true}
	default:
		return glue.TextNormalizer{DoLowerCase: lower}
	}
}

type splitBuilder struct {
	cfg    RecordsConfig
	logger *zap.Logger
	proc   *glue.TaskProcessor
	conv   features.Converter
}

func (b *splitBuilder) build(ctx context.Context, split glue.Split) (SplitReport, error) {
	task := b.proc.Name()
	format := string(b.conv.Format())
	path := filepath.Join(b.cfg.OutputDir, fmt.Sprintf("%s_%s.records", task, split))
	report := SplitReport{Split: split, Path: path}

	exists, err := records.Exists(path)
	if err != nil {
		return report, err
	}
	if exists {
		b.logger.Info("Output already exists, skipping",
			zap.String("split", string(split)),
			zap.String("path", path))
		report.Skipped = true
		return report, nil
	}

	start := time.Now()
	examples, err := b.proc.Examples(b.cfg.InputDir, split)
	if err != nil {
		return report, err
	}
	report.Examples = len(examples)
	examples = glue.PadToBatch(examples, b.cfg.BatchSize)
	report.Padding = len(examples) - report.Examples

	b.logger.Info("Converting examples",
		zap.String("split", string(split)),
		zap.String("format", format),
		zap.Int("examples", report.Examples),
		zap.Int("padding", report.Padding))

	truncatedBefore := b.conv.Truncations()
	recs, err := b.convertAll(ctx, split, examples)
	if err != nil {
		return report, err
	}
	report.Truncations = b.conv.Truncations() - truncatedBefore
	RecordExamplesConverted(task, format, len(recs))
	RecordTruncations(task, format, report.Truncations)

	w, err := records.Open(path, b.cfg.ShardNum, b.logger.Named("records"))
	if err != nil {
		return report, err
	}
	desc := fmt.Sprintf("%s %s split, %s format", task, split, format)
	if err := w.DeclareSchema(b.conv.Schema(), desc); err != nil {
		w.Abort()
		return report, err
	}
	if err := w.Append(recs...); err != nil {
		w.Abort()
		return report, err
	}
	manifest, err := w.Commit()
	if err != nil {
		return report, err
	}

	report.Records = manifest.Records
	report.Bytes = manifest.Bytes()
	report.Duration = time.Since(start)
	RecordSplitWritten(task, string(split), report.Records, report.Bytes, report.Duration.Seconds())

	b.logger.Info("Wrote records",
		zap.String("split", string(split)),
		zap.String("path", path),
		zap.Int("records", report.Records),
		zap.Int("shards", len(manifest.Shards)),
		zap.Uint64("truncated", report.Truncations),
		zap.String("size", humanize.Bytes(uint64(report.Bytes))),
		zap.Duration("took", report.Duration))
	return report, nil
}

// convertAll converts examples in parallel and returns records in example order.
func (b *splitBuilder) convertAll(ctx context.Context, split glue.Split, examples []glue.Example) ([]features.Record, error) {
	recs := make([]features.Record, len(examples))
	workers := max(b.cfg.Workers, 1)

	var bar *progressbar.ProgressBar
	if b.cfg.Progress {
		w := b.cfg.ProgressWriter
		if w == nil {
			w = os.Stderr
		}
		bar = progressbar.NewOptions(len(examples),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(fmt.Sprintf("%s %s", b.proc.Name(), split)))
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ex := range examples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := b.conv.Convert(ex)
			if err != nil {
				return fmt.Errorf("example %d (%s): %w", i, ex.ID, err)
			}
			recs[i] = rec

			n := done.Add(1)
			if bar != nil {
				_ = bar.Add(1)
			}
			if n%progressEvery == 0 {
				b.logger.Info("Conversion progress",
					zap.String("split", string(split)),
					zap.Int64("done", n),
					zap.Int("total", len(examples)))
			}
			return nil
		})
	}
	err := g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
