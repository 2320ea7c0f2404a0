package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/UnknownOlympus/gaia/internal/config"
	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	// tagChunkSize is the number of lines tagged concurrently before output is flushed.
	tagChunkSize = 1024
	// maxLineSize bounds a single input record.
	maxLineSize = 16 << 20
)

// jsonTagger tags one JSON record. *geotag.Engine implements it.
type jsonTagger interface {
	TagJSON(data []byte) ([]byte, error)
}

func newTagCmd() *cobra.Command {
	var inputPath, outputPath string

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag newline-delimited JSON records.",
		Long: "Reads one JSON record per line, attaches a geo_tag to each and writes them in input order. " +
			"Reads stdin and writes stdout unless --input/--output are given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.MustLoad()
			logger := setupLogger(cfg.Env, os.Stderr)
			appMetrics := metrics.NewMetrics(prometheus.NewRegistry())

			engine, store, err := newEngine(cmd.Context(), cfg, logger, appMetrics, false)
			if err != nil {
				return err
			}
			defer store.Close()

			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if inputPath != "" {
				file, errOpen := os.Open(inputPath)
				if errOpen != nil {
					return fmt.Errorf("failed to open input: %w", errOpen)
				}
				defer file.Close()
				in = file
			}
			if outputPath != "" {
				file, errCreate := os.Create(outputPath)
				if errCreate != nil {
					return fmt.Errorf("failed to create output: %w", errCreate)
				}
				defer file.Close()
				out = file
			}

			return tagStream(cmd.Context(), engine, in, out, cfg.Workers, logger)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "newline-delimited JSON input file (default stdin)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")

	return cmd
}

// tagStream tags every line of in on a pool of workers and writes the results
// to out in input order. Lines that are not JSON objects are logged and dropped.
func tagStream(
	ctx context.Context,
	tagger jsonTagger,
	in io.Reader,
	out io.Writer,
	workers int,
	logger *slog.Logger,
) error {
	pool := pond.NewResultPool[[]byte](workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	writer := bufio.NewWriter(out)

	type numberedLine struct {
		no   int
		data []byte
	}

	lineNo, skipped := 0, 0
	chunk := make([]numberedLine, 0, tagChunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		group := pool.NewGroupContext(ctx)
		for _, line := range chunk {
			group.Submit(func() []byte {
				tagged, err := tagger.TagJSON(line.data)
				if err != nil {
					logger.Warn("Skipping invalid record", "line", line.no, "error", err)
					return nil
				}
				return tagged
			})
		}

		results, err := group.Wait()
		if err != nil {
			return fmt.Errorf("failed to tag records: %w", err)
		}
		for _, tagged := range results {
			if tagged == nil {
				skipped++
				continue
			}
			if _, err = writer.Write(tagged); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			if err = writer.WriteByte('\n'); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		chunk = chunk[:0]
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		chunk = append(chunk, numberedLine{no: lineNo, data: bytes.Clone(line)})
		if len(chunk) == tagChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("Tagging finished", "lines", lineNo, "skipped", skipped)

	return writer.Flush()
}
