package output

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ardscohort/cohort"
)

// Summary is the companion document written next to the cohort file: the
// profile that ran, per-stage qualifying counts, drop counters, and headline
// rates. All rates are zero-based when the cohort is empty.
type Summary struct {
	Profile cohort.Profile `yaml:"profile"`

	Input struct {
		Patients        int64 `yaml:"patients"`
		Admissions      int64 `yaml:"admissions"`
		ICUStays        int64 `yaml:"icu_stays"`
		ChartEventsRead int64 `yaml:"chart_events_read"`
		Diagnoses       int64 `yaml:"diagnoses"`
		RadiologyNotes  int64 `yaml:"radiology_notes"`
	} `yaml:"input"`

	Classification struct {
		NullValues   int64 `yaml:"null_values_dropped"`
		UnknownItems int64 `yaml:"unknown_items_dropped"`
		Kept         int64 `yaml:"events_kept"`
	} `yaml:"classification"`

	MissingReferences struct {
		Stays      int64 `yaml:"stay_lookups_failed"`
		Admissions int64 `yaml:"admission_lookups_failed"`
	} `yaml:"missing_references"`

	Stages struct {
		Age            int `yaml:"age"`
		ICUPresence    int `yaml:"icu_presence"`
		PEEPWindow     int `yaml:"peep_window"`
		RatioThreshold int `yaml:"ratio_threshold"`
		RadiologyAny   int `yaml:"radiology_presence"`
		Infiltrates    int `yaml:"bilateral_infiltrates"`
		Excluded       int `yaml:"excluded"`
	} `yaml:"stages"`

	RatioObservations int `yaml:"ratio_observations"`

	Cohort struct {
		Admissions     int     `yaml:"admissions"`
		Rows           int     `yaml:"rows"`
		MortalityRate  float64 `yaml:"mortality_rate"`
		InfiltrateRate float64 `yaml:"bilateral_infiltrate_rate"`
		ARDSRate       float64 `yaml:"ards_rate"`
	} `yaml:"cohort"`
}

// FillCohortRates computes the headline rates from the assembled rows.
func (s *Summary) FillCohortRates(rows []cohort.CohortRow) {
	s.Cohort.Rows = len(rows)
	if len(rows) == 0 {
		return
	}
	var dead, infl, ards int
	seen := make(map[int64]struct{})
	for _, r := range rows {
		seen[r.HadmID] = struct{}{}
		if r.Mortality {
			dead++
		}
		if r.HasBilateralInfiltrates {
			infl++
		}
		if r.HasARDS {
			ards++
		}
	}
	s.Cohort.Admissions = len(seen)
	n := float64(len(rows))
	s.Cohort.MortalityRate = float64(dead) / n
	s.Cohort.InfiltrateRate = float64(infl) / n
	s.Cohort.ARDSRate = float64(ards) / n
}

// WriteSummary writes the summary document as YAML.
func WriteSummary(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write summary %s: %w", path, err)
	}
	return nil
}
