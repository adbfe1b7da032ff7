package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ardscohort/cohort"
)

// PGSource reads the input tables from a PostgreSQL database holding the
// dataset (the usual setup for multi-user access to the full snapshot).
// Chart events are filtered server-side to the relevant item ids so only
// the measurements the pipeline classifies ever cross the wire.
type PGSource struct {
	pool *pgxpool.Pool
}

// OpenPG connects to the database and verifies the connection.
func OpenPG(ctx context.Context, connStr string) (*PGSource, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &PGSource{pool: pool}, nil
}

func (s *PGSource) Close() {
	s.pool.Close()
}

// Patients loads the patients table.
func (s *PGSource) Patients(ctx context.Context) (map[int64]cohort.Patient, Stats, error) {
	var stats Stats
	rows, err := s.pool.Query(ctx,
		`SELECT subject_id, anchor_age, anchor_year, gender FROM patients`)
	if err != nil {
		return nil, stats, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]cohort.Patient)
	for rows.Next() {
		var p cohort.Patient
		if err := rows.Scan(&p.SubjectID, &p.AnchorAge, &p.AnchorYear, &p.Gender); err != nil {
			return nil, stats, fmt.Errorf("scan patients: %w", err)
		}
		stats.RowsRead++
		out[p.SubjectID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read patients: %w", err)
	}
	return out, stats, nil
}

// Admissions loads the admissions table.
func (s *PGSource) Admissions(ctx context.Context) ([]cohort.Admission, Stats, error) {
	var stats Stats
	rows, err := s.pool.Query(ctx,
		`SELECT hadm_id, subject_id, admittime, dischtime,
		        COALESCE(admission_type, ''), COALESCE(insurance, ''),
		        COALESCE(marital_status, ''), hospital_expire_flag
		   FROM admissions`)
	if err != nil {
		return nil, stats, fmt.Errorf("query admissions: %w", err)
	}
	defer rows.Close()

	var out []cohort.Admission
	for rows.Next() {
		var a cohort.Admission
		var expire int16
		if err := rows.Scan(&a.HadmID, &a.SubjectID, &a.AdmitTime, &a.DischTime,
			&a.AdmissionType, &a.Insurance, &a.MaritalStatus, &expire); err != nil {
			return nil, stats, fmt.Errorf("scan admissions: %w", err)
		}
		a.HospitalExpireFlag = expire == 1
		stats.RowsRead++
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read admissions: %w", err)
	}
	return out, stats, nil
}

// ICUStays loads the icustays table.
func (s *PGSource) ICUStays(ctx context.Context) ([]cohort.ICUStay, Stats, error) {
	var stats Stats
	rows, err := s.pool.Query(ctx,
		`SELECT stay_id, hadm_id, subject_id, intime, outtime FROM icustays`)
	if err != nil {
		return nil, stats, fmt.Errorf("query icustays: %w", err)
	}
	defer rows.Close()

	var out []cohort.ICUStay
	for rows.Next() {
		var st cohort.ICUStay
		if err := rows.Scan(&st.StayID, &st.HadmID, &st.SubjectID, &st.InTime, &st.OutTime); err != nil {
			return nil, stats, fmt.Errorf("scan icustays: %w", err)
		}
		stats.RowsRead++
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read icustays: %w", err)
	}
	return out, stats, nil
}

// Diagnoses loads the diagnoses table.
func (s *PGSource) Diagnoses(ctx context.Context) ([]cohort.Diagnosis, Stats, error) {
	var stats Stats
	rows, err := s.pool.Query(ctx,
		`SELECT hadm_id, icd_code FROM diagnoses_icd`)
	if err != nil {
		return nil, stats, fmt.Errorf("query diagnoses_icd: %w", err)
	}
	defer rows.Close()

	var out []cohort.Diagnosis
	for rows.Next() {
		var d cohort.Diagnosis
		if err := rows.Scan(&d.HadmID, &d.ICDCode); err != nil {
			return nil, stats, fmt.Errorf("scan diagnoses_icd: %w", err)
		}
		stats.RowsRead++
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read diagnoses_icd: %w", err)
	}
	return out, stats, nil
}

// RadiologyNotes loads the radiology notes table.
func (s *PGSource) RadiologyNotes(ctx context.Context) ([]cohort.RadiologyNote, Stats, error) {
	var stats Stats
	rows, err := s.pool.Query(ctx,
		`SELECT hadm_id, charttime, text FROM radiology WHERE hadm_id IS NOT NULL`)
	if err != nil {
		return nil, stats, fmt.Errorf("query radiology: %w", err)
	}
	defer rows.Close()

	var out []cohort.RadiologyNote
	for rows.Next() {
		var n cohort.RadiologyNote
		if err := rows.Scan(&n.HadmID, &n.NoteTime, &n.Text); err != nil {
			return nil, stats, fmt.Errorf("scan radiology: %w", err)
		}
		stats.RowsRead++
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read radiology: %w", err)
	}
	return out, stats, nil
}

// StreamChartEvents delivers the relevant chart events one row at a time.
// The item-id filter runs in SQL; classification still happens in the
// pipeline, so the semantics match the file-based sources.
func (s *PGSource) StreamChartEvents(ctx context.Context, itemIDs []int64, onEvent func(cohort.ChartEvent) error) (Stats, error) {
	var stats Stats

	query := `SELECT stay_id, COALESCE(hadm_id, 0), itemid, charttime, valuenum
	            FROM chartevents WHERE stay_id IS NOT NULL`
	args := []any{}
	if len(itemIDs) > 0 {
		query += ` AND itemid = ANY($1)`
		args = append(args, itemIDs)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("query chartevents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev cohort.ChartEvent
		var charted time.Time
		if err := rows.Scan(&ev.StayID, &ev.HadmID, &ev.ItemID, &charted, &ev.Value); err != nil {
			return stats, fmt.Errorf("scan chartevents: %w", err)
		}
		ev.ChartTime = charted
		stats.RowsRead++
		if err := onEvent(ev); err != nil {
			return stats, err
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("read chartevents: %w", err)
	}
	return stats, nil
}
