package source

import (
	"path/filepath"
	"testing"
	"time"

	"ardscohort/cohort"
)

func TestStreamChartEventsParquet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chartevents.parquet")

	ts := time.Date(2130, 5, 1, 11, 0, 0, 0, time.UTC)
	v := 94.0
	events := []cohort.ChartEvent{
		{StayID: 1000, HadmID: 100, ItemID: 220277, ChartTime: ts, Value: &v},
		{StayID: 1000, HadmID: 100, ItemID: 223835, ChartTime: ts.Add(time.Minute), Value: nil},
	}
	if err := WriteChartEventsParquet(path, events); err != nil {
		t.Fatalf("WriteChartEventsParquet: %v", err)
	}

	var got []cohort.ChartEvent
	stats, err := StreamChartEventsParquet(path, func(ev cohort.ChartEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChartEventsParquet: %v", err)
	}
	if stats.RowsRead != 2 || len(got) != 2 {
		t.Fatalf("read %d rows, delivered %d", stats.RowsRead, len(got))
	}
	if got[0].StayID != 1000 || got[0].ItemID != 220277 || !got[0].ChartTime.Equal(ts) {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[0].Value == nil || *got[0].Value != 94 {
		t.Errorf("row 0 value = %v", got[0].Value)
	}
	if got[1].Value != nil {
		t.Errorf("row 1 should keep its nil value, got %v", *got[1].Value)
	}
}

func TestStreamChartEventsParquetMissingFile(t *testing.T) {
	_, err := StreamChartEventsParquet("/nonexistent/chartevents.parquet", func(cohort.ChartEvent) error {
		return nil
	})
	if err == nil {
		t.Error("missing parquet file must be a hard error")
	}
}
