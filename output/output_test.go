package output

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"ardscohort/cohort"
)

func sampleRows() []cohort.CohortRow {
	sev := "moderate"
	ratio := 220.0
	onset := "2130-05-01 12:00:00"
	return []cohort.CohortRow{
		{
			SubjectID: 1, HadmID: 100, StayID: 1000,
			Gender: "F", AgeAtAdmission: 62,
			Mortality: true, ICULOSDays: 4.0,
			HasBilateralInfiltrates: true,
			HasARDSOnset:            true,
			OnsetTime:               &onset,
			OnsetRatio:              &ratio,
			Severity:                &sev,
			HasARDS:                 true,
			Profile:                 "onset",
		},
		{
			SubjectID: 2, HadmID: 200, StayID: 2000,
			Gender: "M", AgeAtAdmission: 45,
			ICULOSDays: 2.5,
			Profile:    "onset",
		},
	}
}

func TestCohortWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.parquet")

	w, err := NewCohortWriter(path)
	if err != nil {
		t.Fatalf("NewCohortWriter: %v", err)
	}
	if err := w.Write(sampleRows()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Count() != 2 {
		t.Errorf("Count = %d, want 2", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows, err := ReadCohort(path)
	if err != nil {
		t.Fatalf("ReadCohort: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("read %d rows, want 2", len(rows))
	}
	if rows[0].HadmID != 100 || !rows[0].HasARDS || rows[0].Severity == nil || *rows[0].Severity != "moderate" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].OnsetRatio != nil || rows[1].HasARDSOnset {
		t.Errorf("row 1 optional fields should be empty: %+v", rows[1])
	}
}

func TestSummaryRates(t *testing.T) {
	var s Summary
	s.FillCohortRates(sampleRows())
	if s.Cohort.Rows != 2 || s.Cohort.Admissions != 2 {
		t.Errorf("cohort counts = %+v", s.Cohort)
	}
	if s.Cohort.MortalityRate != 0.5 || s.Cohort.ARDSRate != 0.5 {
		t.Errorf("rates = %+v", s.Cohort)
	}
}

func TestSummaryRatesEmptyCohort(t *testing.T) {
	var s Summary
	s.FillCohortRates(nil)
	if s.Cohort.Rows != 0 || s.Cohort.MortalityRate != 0 {
		t.Errorf("empty cohort should give zero-based summary: %+v", s.Cohort)
	}
}

func TestWriteSummaryYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")

	var s Summary
	s.Profile = cohort.BuiltinProfiles()["berlin"]
	s.Input.Admissions = 42
	s.Stages.PEEPWindow = 7
	s.FillCohortRates(sampleRows())

	if err := WriteSummary(path, s); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var back Summary
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("summary is not valid YAML: %v", err)
	}
	if back.Profile.Name != "berlin" || back.Input.Admissions != 42 || back.Stages.PEEPWindow != 7 {
		t.Errorf("round-tripped summary = %+v", back)
	}
}
