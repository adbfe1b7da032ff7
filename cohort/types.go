package cohort

import "time"

// Patient is one row of the patients table. AnchorAge/AnchorYear encode the
// de-identified age reference: the patient was AnchorAge years old in
// AnchorYear. Real ages are derived per admission, never stored.
type Patient struct {
	SubjectID  int64
	AnchorAge  int
	AnchorYear int
	Gender     string
}

// Admission is one hospitalization. A patient may have many admissions.
type Admission struct {
	HadmID        int64
	SubjectID     int64
	AdmitTime     time.Time
	DischTime     time.Time
	AdmissionType string
	Insurance     string
	MaritalStatus string
	// HospitalExpireFlag is true when the patient died during this admission.
	HospitalExpireFlag bool
}

// AgeAtAdmission derives the patient's age at admit time from the anchor
// reference: anchor_age + (admission year - anchor year).
func (a Admission) AgeAtAdmission(p Patient) int {
	return p.AnchorAge + (a.AdmitTime.Year() - p.AnchorYear)
}

// ICUStay is one ICU stay. One admission may have several stays; that is an
// expected condition in the data, and stays are never deduplicated.
type ICUStay struct {
	StayID    int64
	HadmID    int64
	SubjectID int64
	InTime    time.Time
	OutTime   time.Time
}

// LOSDays is the ICU length of stay in fractional days.
func (s ICUStay) LOSDays() float64 {
	return s.OutTime.Sub(s.InTime).Hours() / 24
}

// ChartEvent is one raw charted measurement, owned by exactly one ICU stay.
// Value is nil when the source recorded no numeric value; such events are
// discarded during classification.
type ChartEvent struct {
	StayID    int64
	HadmID    int64
	ItemID    int64
	ChartTime time.Time
	Value     *float64
}

// Observation is a derived ratio (S/F or P/F) produced by pairing two chart
// events of complementary kinds on the same stay. Denominator is always > 0.
type Observation struct {
	StayID      int64
	HadmID      int64
	Time        time.Time
	Numerator   float64
	Denominator float64
	Ratio       float64
}

// Diagnosis is one ICD-coded diagnosis for an admission. The code may be
// ICD-9 or ICD-10; the version is distinguished only by prefix pattern.
type Diagnosis struct {
	HadmID  int64
	ICDCode string
}

// RadiologyNote is one free-text radiology report for an admission.
type RadiologyNote struct {
	HadmID   int64
	NoteTime time.Time
	Text     string
}

// CohortRow is the denormalized output: one row per qualifying
// (admission, stay) pair. Written directly to Parquet; timestamps are
// formatted strings so downstream engines see plain sortable columns.
type CohortRow struct {
	SubjectID int64 `parquet:"subject_id"`
	HadmID    int64 `parquet:"hadm_id"`
	StayID    int64 `parquet:"stay_id"`

	Gender         string `parquet:"gender"`
	AgeAtAdmission int32  `parquet:"age_at_admission"`
	AdmissionType  string `parquet:"admission_type"`
	Insurance      string `parquet:"insurance"`
	MaritalStatus  string `parquet:"marital_status"`

	AdmitTime string `parquet:"admit_time"`
	DischTime string `parquet:"disch_time"`
	ICUInTime string `parquet:"icu_intime"`

	Mortality  bool    `parquet:"mortality"`
	ICULOSDays float64 `parquet:"icu_los_days"`

	HasBilateralInfiltrates bool    `parquet:"has_bilateral_infiltrates"`
	InfiltrateTime          *string `parquet:"infiltrate_time,optional"`

	HasARDSOnset bool     `parquet:"has_ards_onset"`
	OnsetTime    *string  `parquet:"onset_time,optional"`
	OnsetRatio   *float64 `parquet:"onset_ratio,optional"`
	Severity     *string  `parquet:"severity,optional"`

	HasARDS bool `parquet:"has_ards"`

	Profile string `parquet:"criteria_profile"`
}

// TimeFormat is the timestamp layout used by the source tables and by the
// string timestamp columns of CohortRow.
const TimeFormat = "2006-01-02 15:04:05"

// FormatTime renders t in the dataset's timestamp layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}
