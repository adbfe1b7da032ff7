package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ardscohort/cohort"
	"ardscohort/logger"
	"ardscohort/output"
	"ardscohort/source"
)

type runConfig struct {
	DataDir      string
	ChartParquet string
	PGConn       string
	OutPath      string
	SummaryPath  string
	ProfileName  string
	ProfilesFile string
	Strategy     cohort.MatchStrategy
	Tolerance    time.Duration
	Verbose      bool
}

// tableSet is everything the pipeline needs in memory: the small tables
// fully loaded, plus the classified chart events retained from the stream.
type tableSet struct {
	patients   map[int64]cohort.Patient
	admissions []cohort.Admission
	stays      []cohort.ICUStay
	diagnoses  []cohort.Diagnosis
	notes      []cohort.RadiologyNote

	ix         *cohort.WindowIndex
	collector  *cohort.Collector
	chartStats source.Stats
}

func run(cfg runConfig) error {
	start := time.Now()

	profiles, err := cohort.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return err
	}
	prof, ok := profiles[cfg.ProfileName]
	if !ok {
		return fmt.Errorf("unknown criteria profile %q", cfg.ProfileName)
	}

	logger.WithFields(logrus.Fields{
		"profile":   prof.Name,
		"ratio":     prof.Ratio,
		"threshold": prof.Threshold,
		"window_h":  prof.WindowHours,
		"match":     cfg.Strategy.String(),
	}).Info("starting cohort extraction")

	var tables *tableSet
	if cfg.PGConn != "" {
		tables, err = loadFromPG(cfg)
	} else {
		tables, err = loadFromFiles(cfg)
	}
	if err != nil {
		return err
	}

	ix := tables.ix
	classStats := tables.collector.Stats()

	logger.WithFields(logrus.Fields{
		"patients":      len(tables.patients),
		"admissions":    len(tables.admissions),
		"icu_stays":     len(tables.stays),
		"events_read":   classStats.Total,
		"events_kept":   classStats.Kept,
		"null_values":   classStats.NullValue,
		"unknown_items": classStats.UnknownItem,
	}).Info("tables loaded")

	// Derived ratio series. The numerator kind follows the profile; FiO2 is
	// always the denominator.
	numKind := cohort.KindSpO2
	if prof.Ratio == cohort.RatioPF {
		numKind = cohort.KindPaO2
	}
	peep := tables.collector.Events(cohort.KindPEEP)
	obs := cohort.DeriveRatios(cfg.Strategy,
		tables.collector.Events(numKind),
		tables.collector.Events(cohort.KindFiO2),
		cfg.Tolerance)

	// Criteria stages, cheapest first. The composition is pure set algebra,
	// so the order only affects logging, not the result.
	ageSet := cohort.FilterAge(tables.patients, tables.admissions, 18)
	icuSet := cohort.FilterICUPresence(tables.stays)
	peepSet := cohort.FilterPEEPWindow(peep, ix, 48, 5)

	findings := cohort.ClassifyNotes(tables.notes, cohort.NewRegexClassifier())
	radSet := cohort.FilterRadiologyPresence(findings)

	ratio := cohort.FilterRatio(obs, prof, ix, findings.FirstPositive, peep)

	excluded := cohort.Exclusions(tables.diagnoses)

	final := cohort.Subtract(
		cohort.Intersect(ageSet, icuSet, peepSet, ratio.Admissions, radSet),
		excluded)

	logger.WithFields(logrus.Fields{
		"age":         ageSet.Len(),
		"icu":         icuSet.Len(),
		"peep_window": peepSet.Len(),
		"ratio":       ratio.Admissions.Len(),
		"radiology":   radSet.Len(),
		"infiltrates": findings.Positive.Len(),
		"excluded":    excluded.Len(),
		"final":       final.Len(),
	}).Info("criteria stages evaluated")

	rows := cohort.Assemble(cohort.AssembleInput{
		Qualifying: final,
		Patients:   tables.patients,
		Admissions: tables.admissions,
		Stays:      tables.stays,
		Findings:   findings,
		Onsets:     ratio.Onsets,
		Profile:    prof,
	})

	writer, err := output.NewCohortWriter(cfg.OutPath)
	if err != nil {
		return err
	}
	if err := writer.Write(rows); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	var summary output.Summary
	summary.Profile = prof
	summary.Input.Patients = int64(len(tables.patients))
	summary.Input.Admissions = int64(len(tables.admissions))
	summary.Input.ICUStays = int64(len(tables.stays))
	summary.Input.ChartEventsRead = tables.chartStats.RowsRead
	summary.Input.Diagnoses = int64(len(tables.diagnoses))
	summary.Input.RadiologyNotes = int64(len(tables.notes))
	summary.Classification.NullValues = classStats.NullValue
	summary.Classification.UnknownItems = classStats.UnknownItem
	summary.Classification.Kept = classStats.Kept
	summary.MissingReferences.Stays, summary.MissingReferences.Admissions = ix.MissingReferences()
	summary.Stages.Age = ageSet.Len()
	summary.Stages.ICUPresence = icuSet.Len()
	summary.Stages.PEEPWindow = peepSet.Len()
	summary.Stages.RatioThreshold = ratio.Admissions.Len()
	summary.Stages.RadiologyAny = radSet.Len()
	summary.Stages.Infiltrates = findings.Positive.Len()
	summary.Stages.Excluded = excluded.Len()
	summary.RatioObservations = len(obs)
	summary.FillCohortRates(rows)

	if err := output.WriteSummary(cfg.SummaryPath, summary); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"rows":    len(rows),
		"out":     cfg.OutPath,
		"summary": cfg.SummaryPath,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("cohort written")

	return nil
}

// chartCallback classifies streamed chart events, resolving the owning
// admission through the stay index when the source row lacks it, and logs
// progress at a fixed cadence.
func chartCallback(ix *cohort.WindowIndex, collector *cohort.Collector, verbose bool) func(cohort.ChartEvent) error {
	var seen int64
	lastLog := time.Now()
	return func(ev cohort.ChartEvent) error {
		seen++
		if ev.HadmID == 0 {
			stay, ok := ix.Stay(ev.StayID)
			if !ok {
				// No window to position this event against; drop it.
				return nil
			}
			ev.HadmID = stay.HadmID
		}
		collector.Add(ev)

		if verbose && time.Since(lastLog) >= 5*time.Second {
			logger.WithFields(logrus.Fields{
				"events_read": seen,
				"events_kept": collector.Stats().Kept,
			}).Info("streaming chart events")
			lastLog = time.Now()
		}
		return nil
	}
}

// loadFromFiles loads from CSV (and optionally a chart-events parquet file).
func loadFromFiles(cfg runConfig) (*tableSet, error) {
	t := &tableSet{collector: cohort.NewCollector()}
	var err error

	if t.patients, _, err = source.ReadPatients(cfg.DataDir); err != nil {
		return nil, err
	}
	if t.admissions, _, err = source.ReadAdmissions(cfg.DataDir); err != nil {
		return nil, err
	}
	if t.stays, _, err = source.ReadICUStays(cfg.DataDir); err != nil {
		return nil, err
	}
	if t.diagnoses, _, err = source.ReadDiagnoses(cfg.DataDir); err != nil {
		return nil, err
	}
	if t.notes, _, err = source.ReadRadiologyNotes(cfg.DataDir); err != nil {
		return nil, err
	}

	t.ix = cohort.NewWindowIndex(t.admissions, t.stays)
	onEvent := chartCallback(t.ix, t.collector, cfg.Verbose)

	if cfg.ChartParquet != "" {
		t.chartStats, err = source.StreamChartEventsParquet(cfg.ChartParquet, onEvent)
	} else {
		t.chartStats, err = source.StreamChartEvents(cfg.DataDir, onEvent)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// loadFromPG loads everything from a PostgreSQL database.
func loadFromPG(cfg runConfig) (*tableSet, error) {
	ctx := context.Background()

	src, err := source.OpenPG(ctx, cfg.PGConn)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	t := &tableSet{collector: cohort.NewCollector()}

	if t.patients, _, err = src.Patients(ctx); err != nil {
		return nil, err
	}
	if t.admissions, _, err = src.Admissions(ctx); err != nil {
		return nil, err
	}
	if t.stays, _, err = src.ICUStays(ctx); err != nil {
		return nil, err
	}
	if t.diagnoses, _, err = src.Diagnoses(ctx); err != nil {
		return nil, err
	}
	if t.notes, _, err = src.RadiologyNotes(ctx); err != nil {
		return nil, err
	}

	t.ix = cohort.NewWindowIndex(t.admissions, t.stays)
	onEvent := chartCallback(t.ix, t.collector, cfg.Verbose)

	t.chartStats, err = src.StreamChartEvents(ctx, cohort.RelevantItemIDs(), onEvent)
	if err != nil {
		return nil, err
	}
	return t, nil
}
