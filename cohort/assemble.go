package cohort

import (
	"sort"
	"time"
)

// AssembleInput carries everything the final join needs.
type AssembleInput struct {
	Qualifying Set // admission ids surviving all stages
	Patients   map[int64]Patient
	Admissions []Admission
	Stays      []ICUStay
	Findings   InfiltrateFindings
	Onsets     map[int64]Onset // keyed by stay id
	Profile    Profile
}

// Assemble produces one output row per (admission, stay) pair in the
// qualifying set. Each stay keeps its own length of stay and its own onset;
// nothing is deduplicated across multiple stays of one admission. An empty
// qualifying set yields an empty slice. Rows are ordered by (hadm, stay) so
// reruns on identical input emit byte-identical output.
func Assemble(in AssembleInput) []CohortRow {
	admByID := make(map[int64]Admission, len(in.Admissions))
	for _, a := range in.Admissions {
		admByID[a.HadmID] = a
	}

	stays := make([]ICUStay, len(in.Stays))
	copy(stays, in.Stays)
	sort.SliceStable(stays, func(i, j int) bool {
		if stays[i].HadmID != stays[j].HadmID {
			return stays[i].HadmID < stays[j].HadmID
		}
		return stays[i].StayID < stays[j].StayID
	})

	var rows []CohortRow
	for _, s := range stays {
		if !in.Qualifying.Contains(s.HadmID) {
			continue
		}
		adm, ok := admByID[s.HadmID]
		if !ok {
			continue
		}
		p, ok := in.Patients[adm.SubjectID]
		if !ok {
			continue
		}

		row := CohortRow{
			SubjectID:      adm.SubjectID,
			HadmID:         adm.HadmID,
			StayID:         s.StayID,
			Gender:         p.Gender,
			AgeAtAdmission: int32(adm.AgeAtAdmission(p)),
			AdmissionType:  adm.AdmissionType,
			Insurance:      adm.Insurance,
			MaritalStatus:  adm.MaritalStatus,
			AdmitTime:      FormatTime(adm.AdmitTime),
			DischTime:      FormatTime(adm.DischTime),
			ICUInTime:      FormatTime(s.InTime),
			Mortality:      adm.HospitalExpireFlag,
			ICULOSDays:     s.LOSDays(),
			Profile:        in.Profile.Name,
		}

		if in.Findings.Positive.Contains(adm.HadmID) {
			row.HasBilateralInfiltrates = true
			if t, ok := in.Findings.FirstPositive[adm.HadmID]; ok {
				row.InfiltrateTime = timePtr(t)
			}
		}

		if onset, ok := in.Onsets[s.StayID]; ok {
			row.HasARDSOnset = true
			row.OnsetTime = timePtr(onset.Time)
			ratio := onset.Ratio
			row.OnsetRatio = &ratio
			if sev := in.Profile.SeverityFor(onset.Ratio); sev != "" {
				row.Severity = &sev
			}
		}

		row.HasARDS = row.HasBilateralInfiltrates && row.HasARDSOnset
		rows = append(rows, row)
	}
	return rows
}

func timePtr(t time.Time) *string {
	s := FormatTime(t)
	return &s
}
