// Package output persists the final cohort (Parquet) and the companion run
// summary (YAML).
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"ardscohort/cohort"
)

const flushInterval = 100_000

// CohortWriter streams cohort rows to a Parquet file, flushing row groups
// periodically to bound memory usage.
type CohortWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[cohort.CohortRow]
	count  int
}

func NewCohortWriter(path string) (*CohortWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cohort parquet: %w", err)
	}

	writer := parquet.NewGenericWriter[cohort.CohortRow](file,
		parquet.Compression(&parquet.Snappy),
	)

	return &CohortWriter{file: file, writer: writer}, nil
}

// Write appends rows to the file.
func (w *CohortWriter) Write(rows []cohort.CohortRow) error {
	for len(rows) > 0 {
		n := len(rows)
		if n > flushInterval {
			n = flushInterval
		}
		if _, err := w.writer.Write(rows[:n]); err != nil {
			return fmt.Errorf("write cohort rows: %w", err)
		}
		w.count += n
		rows = rows[n:]

		if w.count%flushInterval == 0 {
			if err := w.writer.Flush(); err != nil {
				return fmt.Errorf("flush cohort row group: %w", err)
			}
		}
	}
	return nil
}

// Count returns the number of rows written so far.
func (w *CohortWriter) Count() int {
	return w.count
}

func (w *CohortWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close cohort writer: %w", err)
	}
	return w.file.Close()
}

// ReadCohort loads all rows back from a cohort parquet file. Used by tests
// and ad-hoc verification.
func ReadCohort(path string) ([]cohort.CohortRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cohort parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[cohort.CohortRow](f)
	defer reader.Close()

	rows := make([]cohort.CohortRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read cohort parquet: %w", err)
	}
	return rows[:n], nil
}
