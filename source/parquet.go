package source

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"ardscohort/cohort"
)

// chartEventRow mirrors the schema of a pre-converted chart-events parquet
// file. Timestamps are the dataset's string layout, values optional.
type chartEventRow struct {
	SubjectID int64    `parquet:"subject_id"`
	HadmID    int64    `parquet:"hadm_id"`
	StayID    int64    `parquet:"stay_id"`
	ItemID    int64    `parquet:"itemid"`
	ChartTime string   `parquet:"charttime"`
	ValueNum  *float64 `parquet:"valuenum,optional"`
}

const chartEventBatch = 8192

// StreamChartEventsParquet delivers chart events from a parquet file one row
// at a time, reading in fixed-size batches so memory stays bounded.
func StreamChartEventsParquet(path string, onEvent func(cohort.ChartEvent) error) (Stats, error) {
	var stats Stats

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[chartEventRow](f)
	defer reader.Close()

	buf := make([]chartEventRow, chartEventBatch)
	for {
		n, readErr := reader.Read(buf)

		for i := 0; i < n; i++ {
			row := buf[i]
			stats.RowsRead++

			charted, err := time.Parse(cohort.TimeFormat, row.ChartTime)
			if err != nil {
				stats.RowsDropped++
				continue
			}
			ev := cohort.ChartEvent{
				StayID:    row.StayID,
				HadmID:    row.HadmID,
				ItemID:    row.ItemID,
				ChartTime: charted,
				Value:     row.ValueNum,
			}
			if err := onEvent(ev); err != nil {
				return stats, err
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return stats, fmt.Errorf("read parquet %s: %w", path, readErr)
		}
	}
	return stats, nil
}

// WriteChartEventsParquet converts a slice of chart events to a parquet
// file in the schema StreamChartEventsParquet reads. Used by tests and by
// the csv-to-parquet preconversion path.
func WriteChartEventsParquet(path string, events []cohort.ChartEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet %s: %w", path, err)
	}

	writer := parquet.NewGenericWriter[chartEventRow](f, parquet.Compression(&parquet.Snappy))

	rows := make([]chartEventRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, chartEventRow{
			HadmID:    ev.HadmID,
			StayID:    ev.StayID,
			ItemID:    ev.ItemID,
			ChartTime: cohort.FormatTime(ev.ChartTime),
			ValueNum:  ev.Value,
		})
	}
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}
