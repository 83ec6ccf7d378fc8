package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/feichai0017/study-assistant/internal/agent"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

type extractOptions struct {
	asJSON      bool
	timeout     time.Duration
	scratchDir  string
	pageWorkers int
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract study text and image information from a document",
		Long: `Extract reads a PDF, DOCX, PPTX or TXT file and prints the plain text the
study assistant would send to the model, including inline [IMAGE n]
placeholders and the image information block.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "abort the extraction after this long (0 disables)")
	cmd.Flags().StringVar(&opts.scratchDir, "scratch-dir", "", "parent directory for temporary files (default: system temp)")
	cmd.Flags().IntVar(&opts.pageWorkers, "pdf-workers", 0, "concurrent PDF page readers (default: number of CPUs)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")

	return cmd
}

func runExtract(cmd *cobra.Command, path string, opts *extractOptions) error {
	log := logger.NewNop()
	if opts.verbose {
		var err error
		log, err = logger.NewLogger(
			logger.WithLevel("debug"),
			logger.WithEncoding("console"),
			logger.WithOutputPaths([]string{"stderr"}),
		)
		if err != nil {
			return err
		}
		defer log.Sync()
	}

	factory := agent.NewExtractorFactory(agent.ExtractorConfig{
		ScratchDir:     opts.scratchDir,
		Timeout:        opts.timeout,
		PDFPageWorkers: opts.pageWorkers,
	}, log)

	result, err := factory.Extract(cmd.Context(), path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err = fmt.Fprintln(out, result.Text)
	return err
}
