package cohort

import "testing"

func TestIsHeartFailureCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"4280", true},
		{"42823", true},
		{"4289", true},
		{"428", false}, // bare category without a fourth digit
		{"4270", false},
		{"I50", true},
		{"I509", true},
		{"i5023", true},
		{"I49", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHeartFailureCode(tt.code); got != tt.want {
			t.Errorf("IsHeartFailureCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsPregnancyCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"630", true},
		{"650", true},
		{"67900", true},
		{"629", false},
		{"680", false},
		{"O26891", true},
		{"o80", true},
		{"N390", false},
		{"V270", false}, // outcome-of-delivery V code, not chapter O
		{"63", false},   // too short
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPregnancyCode(tt.code); got != tt.want {
			t.Errorf("IsPregnancyCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestAdmissionsMatching(t *testing.T) {
	diags := []Diagnosis{
		{HadmID: 1, ICDCode: "4280"},
		{HadmID: 1, ICDCode: "困惑"}, // garbage code matches nothing
		{HadmID: 2, ICDCode: "O80"},
		{HadmID: 3, ICDCode: "25000"},
	}

	hf := AdmissionsMatching(diags, IsHeartFailureCode)
	if !hf.Contains(1) || hf.Len() != 1 {
		t.Errorf("heart failure set = %v", hf.Sorted())
	}

	// An admission with both exclusion categories is excluded once.
	diags = append(diags, Diagnosis{HadmID: 1, ICDCode: "650"})
	excluded := Exclusions(diags)
	want := []int64{1, 2}
	got := excluded.Sorted()
	if len(got) != len(want) || got[0] != 1 || got[1] != 2 {
		t.Errorf("Exclusions = %v, want %v", got, want)
	}
}
