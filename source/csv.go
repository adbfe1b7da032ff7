// Package source reads the six input tables from CSV (optionally gzipped),
// Parquet (pre-converted chart events), or a PostgreSQL database. All
// readers stream: the small tables materialize into slices, the chart-event
// table is delivered row by row through a callback so peak memory stays
// bounded by the retained matches rather than the table size.
//
// A table that cannot be opened or whose header is malformed is a fatal
// error for the run. Individual rows with unparseable fields are dropped
// and counted; a partial cohort built from silently skipped tables is worse
// than no cohort.
package source

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ardscohort/cohort"
)

// Stats counts what a reader saw and dropped.
type Stats struct {
	RowsRead    int64
	RowsDropped int64
}

// tableFile resolves a table name inside the data directory, accepting
// plain and gzipped CSV.
func tableFile(dir, name string) (string, error) {
	for _, candidate := range []string{name + ".csv", name + ".csv.gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("table %s not found in %s (tried .csv and .csv.gz)", name, dir)
}

// tableReader wraps one open CSV table: file handle, optional gzip layer,
// csv reader, and a lowercase header index.
type tableReader struct {
	file   *os.File
	gz     *gzip.Reader
	csv    *csv.Reader
	colIdx map[string]int
	rowNum int64
}

func openTable(path string) (*tableReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	r := &tableReader{file: file}

	var src io.Reader = bufReader
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(bufReader)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		r.gz = gz
		src = gz
	} else {
		// Skip UTF-8 BOM if present
		bom, err := bufReader.Peek(3)
		if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
			bufReader.Discard(3)
		}
	}

	r.csv = csv.NewReader(src)
	r.csv.LazyQuotes = true
	r.csv.FieldsPerRecord = -1

	header, err := r.csv.Read()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	r.rowNum++

	r.colIdx = make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		r.colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return r, nil
}

// require verifies that every named column is present.
func (r *tableReader) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := r.colIdx[c]; !ok {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

func (r *tableReader) next() ([]string, error) {
	row, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	r.rowNum++
	return row, nil
}

func (r *tableReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Field access helpers, shared by all table readers.

func (r *tableReader) str(row []string, col string) string {
	if i, ok := r.colIdx[col]; ok && i < len(row) {
		return strings.ToValidUTF8(strings.TrimSpace(row[i]), "�")
	}
	return ""
}

func (r *tableReader) int64At(row []string, col string) (int64, bool) {
	s := r.str(row, col)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *tableReader) intAt(row []string, col string) (int, bool) {
	n, ok := r.int64At(row, col)
	return int(n), ok
}

func (r *tableReader) floatAt(row []string, col string) *float64 {
	s := r.str(row, col)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (r *tableReader) timeAt(row []string, col string) (time.Time, bool) {
	s := r.str(row, col)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(cohort.TimeFormat, s)
	if err != nil {
		// Some exports carry date-only discharge columns.
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// ReadPatients loads the patients table.
func ReadPatients(dir string) (map[int64]cohort.Patient, Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "patients")
	if err != nil {
		return nil, stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return nil, stats, err
	}
	defer r.Close()

	if err := r.require("subject_id", "anchor_age", "anchor_year", "gender"); err != nil {
		return nil, stats, fmt.Errorf("patients: %w", err)
	}

	out := make(map[int64]cohort.Patient)
	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("patients row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		subj, ok1 := r.int64At(row, "subject_id")
		age, ok2 := r.intAt(row, "anchor_age")
		year, ok3 := r.intAt(row, "anchor_year")
		if !ok1 || !ok2 || !ok3 {
			stats.RowsDropped++
			continue
		}
		out[subj] = cohort.Patient{
			SubjectID:  subj,
			AnchorAge:  age,
			AnchorYear: year,
			Gender:     r.str(row, "gender"),
		}
	}
	return out, stats, nil
}

// ReadAdmissions loads the admissions table.
func ReadAdmissions(dir string) ([]cohort.Admission, Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "admissions")
	if err != nil {
		return nil, stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return nil, stats, err
	}
	defer r.Close()

	if err := r.require("subject_id", "hadm_id", "admittime"); err != nil {
		return nil, stats, fmt.Errorf("admissions: %w", err)
	}

	var out []cohort.Admission
	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("admissions row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		subj, ok1 := r.int64At(row, "subject_id")
		hadm, ok2 := r.int64At(row, "hadm_id")
		admit, ok3 := r.timeAt(row, "admittime")
		if !ok1 || !ok2 || !ok3 {
			stats.RowsDropped++
			continue
		}
		disch, _ := r.timeAt(row, "dischtime")
		out = append(out, cohort.Admission{
			HadmID:             hadm,
			SubjectID:          subj,
			AdmitTime:          admit,
			DischTime:          disch,
			AdmissionType:      r.str(row, "admission_type"),
			Insurance:          r.str(row, "insurance"),
			MaritalStatus:      r.str(row, "marital_status"),
			HospitalExpireFlag: r.str(row, "hospital_expire_flag") == "1",
		})
	}
	return out, stats, nil
}

// ReadICUStays loads the icustays table.
func ReadICUStays(dir string) ([]cohort.ICUStay, Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "icustays")
	if err != nil {
		return nil, stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return nil, stats, err
	}
	defer r.Close()

	if err := r.require("hadm_id", "stay_id", "intime", "outtime"); err != nil {
		return nil, stats, fmt.Errorf("icustays: %w", err)
	}

	var out []cohort.ICUStay
	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("icustays row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		hadm, ok1 := r.int64At(row, "hadm_id")
		stay, ok2 := r.int64At(row, "stay_id")
		in, ok3 := r.timeAt(row, "intime")
		outT, ok4 := r.timeAt(row, "outtime")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			stats.RowsDropped++
			continue
		}
		subj, _ := r.int64At(row, "subject_id")
		out = append(out, cohort.ICUStay{
			StayID:    stay,
			HadmID:    hadm,
			SubjectID: subj,
			InTime:    in,
			OutTime:   outT,
		})
	}
	return out, stats, nil
}

// ReadDiagnoses loads the diagnoses table.
func ReadDiagnoses(dir string) ([]cohort.Diagnosis, Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "diagnoses_icd")
	if err != nil {
		return nil, stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return nil, stats, err
	}
	defer r.Close()

	if err := r.require("hadm_id", "icd_code"); err != nil {
		return nil, stats, fmt.Errorf("diagnoses_icd: %w", err)
	}

	var out []cohort.Diagnosis
	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("diagnoses_icd row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		hadm, ok := r.int64At(row, "hadm_id")
		code := r.str(row, "icd_code")
		if !ok || code == "" {
			stats.RowsDropped++
			continue
		}
		out = append(out, cohort.Diagnosis{HadmID: hadm, ICDCode: code})
	}
	return out, stats, nil
}

// ReadRadiologyNotes loads the radiology notes table.
func ReadRadiologyNotes(dir string) ([]cohort.RadiologyNote, Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "radiology")
	if err != nil {
		return nil, stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return nil, stats, err
	}
	defer r.Close()

	if err := r.require("hadm_id", "charttime", "text"); err != nil {
		return nil, stats, fmt.Errorf("radiology: %w", err)
	}

	var out []cohort.RadiologyNote
	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("radiology row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		hadm, ok1 := r.int64At(row, "hadm_id")
		noteTime, ok2 := r.timeAt(row, "charttime")
		if !ok1 || !ok2 {
			stats.RowsDropped++
			continue
		}
		out = append(out, cohort.RadiologyNote{
			HadmID:   hadm,
			NoteTime: noteTime,
			Text:     r.str(row, "text"),
		})
	}
	return out, stats, nil
}

// StreamChartEvents delivers chart events one row at a time through onEvent.
// Rows missing a stay id, item id, or timestamp are dropped and counted;
// the value column may be empty (delivered as nil, discarded by the
// classifier). The callback returning an error aborts the stream.
func StreamChartEvents(dir string, onEvent func(cohort.ChartEvent) error) (Stats, error) {
	var stats Stats
	path, err := tableFile(dir, "chartevents")
	if err != nil {
		return stats, err
	}
	r, err := openTable(path)
	if err != nil {
		return stats, err
	}
	defer r.Close()

	if err := r.require("stay_id", "itemid", "charttime"); err != nil {
		return stats, fmt.Errorf("chartevents: %w", err)
	}

	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("chartevents row %d: %w", r.rowNum, err)
		}
		stats.RowsRead++

		stay, ok1 := r.int64At(row, "stay_id")
		item, ok2 := r.int64At(row, "itemid")
		charted, ok3 := r.timeAt(row, "charttime")
		if !ok1 || !ok2 || !ok3 {
			stats.RowsDropped++
			continue
		}
		hadm, _ := r.int64At(row, "hadm_id")

		ev := cohort.ChartEvent{
			StayID:    stay,
			HadmID:    hadm,
			ItemID:    item,
			ChartTime: charted,
			Value:     r.floatAt(row, "valuenum"),
		}
		if err := onEvent(ev); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
