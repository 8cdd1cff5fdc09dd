package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dgallion1/contractlens/internal/archive"
	"github.com/dgallion1/contractlens/internal/delivery"
	"github.com/dgallion1/contractlens/internal/parser"
	"github.com/dgallion1/contractlens/internal/pipeline"
)

var (
	analyzeSession   string
	analyzeChunkSize int
	analyzeSegment   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Analyze one contract and print the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		path := args[0]
		if !parser.IsSupportedExtension(path) {
			return errors.WithHintf(errors.Newf("unsupported file type %q", filepath.Ext(path)),
				"supported: %s", strings.Join(slices.Sorted(maps.Keys(parser.SupportedExtensions)), " "))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		llm, err := newReasoningClient(cfg)
		if err != nil {
			return err
		}
		defer llm.Close()

		p, err := newPipeline(cfg, llm, log)
		if err != nil {
			return err
		}

		var recorder pipeline.RunRecorder
		if cfg.ArchivePath != "" {
			store, err := archive.Open(cfg.ArchivePath)
			if err != nil {
				return err
			}
			defer store.Close()
			recorder = store
		}

		orch := pipeline.NewOrchestrator(cfg, p, recorder, log)
		run, runErr := orch.Analyze(cmd.Context(), filepath.Base(path), data, analyzeSession, analyzeChunkSize)

		out := cmd.OutOrStdout()
		if run == nil {
			fmt.Fprintln(out, delivery.FailureMessage(runErr))
			return runErr
		}
		text := delivery.Message(run)
		if analyzeSegment {
			for i, seg := range delivery.Segment(text, cfg.SegmentLimit) {
				if i > 0 {
					fmt.Fprintln(out, "\n-----")
				}
				fmt.Fprintln(out, seg)
			}
		} else {
			fmt.Fprintln(out, text)
		}
		return runErr
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSession, "session", "", "session identifier recorded with the run (generated when empty)")
	analyzeCmd.Flags().IntVar(&analyzeChunkSize, "chunk-size", 0, "override CHUNK_SIZE for this run")
	analyzeCmd.Flags().BoolVar(&analyzeSegment, "segment", false, "print the report as chat-sized segments")
}
