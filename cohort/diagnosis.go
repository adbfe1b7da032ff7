package cohort

import (
	"strconv"
	"strings"
)

// Diagnosis code classification for the exclusion criteria. Codes may be
// ICD-9 (numeric) or ICD-10 (leading letter); the version is inferred from
// the prefix pattern alone. A code matching neither rule set is simply a
// non-match for both categories — absence of evidence is not evidence of
// exclusion.

// IsHeartFailureCode reports whether an ICD code denotes heart failure:
// ICD-9 codes 4280x through 4289x, ICD-10 codes starting with I50.
func IsHeartFailureCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if strings.HasPrefix(code, "I50") {
		return true
	}
	if len(code) >= 4 && code[:3] == "428" && code[3] >= '0' && code[3] <= '9' {
		return true
	}
	return false
}

// IsPregnancyCode reports whether an ICD code falls in the pregnancy and
// childbirth chapters: ICD-9 categories 630-679, ICD-10 chapter O.
func IsPregnancyCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if strings.HasPrefix(code, "O") {
		return true
	}
	if len(code) < 3 {
		return false
	}
	n, err := strconv.Atoi(code[:3])
	if err != nil {
		return false
	}
	return n >= 630 && n <= 679
}

// AdmissionsMatching collects the admissions having at least one diagnosis
// for which match returns true.
func AdmissionsMatching(diagnoses []Diagnosis, match func(string) bool) Set {
	out := make(Set)
	for _, d := range diagnoses {
		if match(d.ICDCode) {
			out.Add(d.HadmID)
		}
	}
	return out
}
