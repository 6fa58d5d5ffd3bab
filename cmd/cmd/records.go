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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/antflydb/hatchery"
	"github.com/antflydb/hatchery/lib/features"
	"github.com/antflydb/hatchery/lib/tokenizer"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Convert GLUE TSV files into training records",
	Long: `Read the train, dev and test splits of a GLUE task and write one
sharded record file per split to the output directory, named
<task>_<split>.records. Existing outputs are skipped.

Formats: ` + strings.Join(features.FormatNames(), ", ") + `

Examples:
  # BERT classification records
  hatchery records --task cola --vocab vocab.txt --input-dir glue_data \
    --output-dir out --do-train --do-eval --do-pred

  # Text-to-text records padded to batches of 32
  hatchery records --task rte --format t5 --spm-model spiece.model \
    --src-seq-length 256 --tgt-seq-length 8 --batch-size 32 \
    --input-dir glue_data --output-dir out --do-eval`,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	defaults := hatchery.DefaultRecordsConfig()
	f := recordsCmd.Flags()
	f.String("task", "", "GLUE task name (see 'hatchery tasks')")
	f.String("format", defaults.Format, "record format: classification (bert), translation (t5) or generative (gpt)")
	f.String("input-dir", "", "directory holding the GLUE task folders")
	f.String("output-dir", "", "directory to write record files to")
	f.String("vocab", "", "WordPiece vocab.txt")
	f.String("spm-model", "", "SentencePiece model file; enables SentencePiece text preprocessing")
	f.String("tokenizer", "", "tokenizer kind: wordpiece, sentencepiece, bpe or huggingface (default: detect)")
	f.String("tokenizer-path", "", "tokenizer file or model directory when --vocab and --spm-model are unset")
	f.String("bpe-encoding", tokenizer.DefaultBPEEncoding, "tiktoken encoding for the bpe tokenizer")
	f.Bool("do-lower-case", defaults.DoLowerCase, "lowercase input text")
	f.Int("max-seq-length", defaults.MaxSeqLength, "sequence length for classification and generative records")
	f.Int("src-seq-length", defaults.SrcSeqLength, "source length for translation records")
	f.Int("tgt-seq-length", defaults.TgtSeqLength, "target length for translation records")
	f.Int("shard-num", defaults.ShardNum, "number of shards per record file")
	f.Bool("do-train", false, "convert the train split")
	f.Bool("do-eval", false, "convert the dev split")
	f.Bool("do-pred", false, "convert the test split")
	f.Int("batch-size", 0, "pad each split with padding examples to a multiple of this size")
	f.Int("workers", defaults.Workers, "number of examples converted in parallel")
	f.String("tasks-file", "", "TOML file with extra task definitions")
	f.Bool("progress", false, "show a progress bar")

	for _, name := range []string{
		"task", "format", "input-dir", "output-dir", "vocab", "spm-model",
		"tokenizer", "tokenizer-path", "bpe-encoding", "do-lower-case",
		"max-seq-length", "src-seq-length", "tgt-seq-length", "shard-num",
		"do-train", "do-eval", "do-pred", "batch-size", "workers", "tasks-file",
		"progress",
	} {
		mustBindPFlag("records."+strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
}

// recordsConfig builds a RecordsConfig from the records.* config keys.
func recordsConfig() (hatchery.RecordsConfig, error) {
	cfg := hatchery.RecordsConfig{
		Task:         viper.GetString("records.task"),
		Format:       viper.GetString("records.format"),
		InputDir:     viper.GetString("records.input_dir"),
		OutputDir:    viper.GetString("records.output_dir"),
		DoLowerCase:  viper.GetBool("records.do_lower_case"),
		MaxSeqLength: viper.GetInt("records.max_seq_length"),
		SrcSeqLength: viper.GetInt("records.src_seq_length"),
		TgtSeqLength: viper.GetInt("records.tgt_seq_length"),
		ShardNum:     viper.GetInt("records.shard_num"),
		DoTrain:      viper.GetBool("records.do_train"),
		DoEval:       viper.GetBool("records.do_eval"),
		DoPredict:    viper.GetBool("records.do_pred"),
		BatchSize:    viper.GetInt("records.batch_size"),
		Workers:      viper.GetInt("records.workers"),
		TasksFile:    viper.GetString("records.tasks_file"),
		Progress:     viper.GetBool("records.progress"),
	}
	if cfg.Task == "" {
		return cfg, errors.New("--task is required")
	}
	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return cfg, errors.New("--input-dir and --output-dir are required")
	}

	tok, err := tokenizerFlags("records")
	if err != nil {
		return cfg, err
	}
	cfg.Tokenizer = tok
	return cfg, nil
}

// tokenizerFlags resolves the tokenizer config under prefix. An explicit
// SentencePiece model wins over a WordPiece vocab.
func tokenizerFlags(prefix string) (tokenizer.Config, error) {
	cfg := tokenizer.Config{
		Kind:     tokenizer.Kind(viper.GetString(prefix + ".tokenizer")),
		Path:     viper.GetString(prefix + ".tokenizer_path"),
		Encoding: viper.GetString(prefix + ".bpe_encoding"),
	}
	if spm := viper.GetString(prefix + ".spm_model"); spm != "" {
		cfg.Kind = tokenizer.KindSentencePiece
		cfg.Path = spm
	} else if vocab := viper.GetString(prefix + ".vocab"); vocab != "" {
		cfg.Kind = tokenizer.KindWordPiece
		cfg.Path = vocab
	}
	if cfg.Path == "" && cfg.Kind != tokenizer.KindBPE {
		return cfg, errors.New("a tokenizer is required: set --vocab, --spm-model or --tokenizer-path")
	}
	return cfg, nil
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := recordsConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	ready := startHealth(logger)
	ready.Store(true)

	logger.Info("Building records",
		zap.String("task", cfg.Task),
		zap.String("format", cfg.Format),
		zap.String("tokenizer", string(cfg.Tokenizer.Kind)),
		zap.Strings("splits", splitNames(cfg)))

	reports, err := hatchery.BuildRecords(ctx, logger, cfg)
	printReports(reports)
	return err
}

func splitNames(cfg hatchery.RecordsConfig) []string {
	var names []string
	for _, s := range cfg.Splits() {
		names = append(names, string(s))
	}
	return names
}

func printReports(reports []hatchery.SplitReport) {
	if len(reports) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SPLIT\tEXAMPLES\tPADDING\tRECORDS\tTRUNCATED\tSIZE\tPATH")
	for _, r := range reports {
		if r.Skipped {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s (exists)\n", r.Split, r.Path)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Split, r.Examples, r.Padding, r.Records, r.Truncations, humanize.Bytes(uint64(r.Bytes)), r.Path)
	}
	_ = w.Flush()
}
