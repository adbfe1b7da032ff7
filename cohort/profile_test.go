package cohort

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinProfiles(t *testing.T) {
	profiles := BuiltinProfiles()
	for _, name := range []string{"base", "berlin", "onset"} {
		p, ok := profiles[name]
		if !ok {
			t.Fatalf("missing builtin profile %q", name)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("builtin %q invalid: %v", name, err)
		}
	}

	base := profiles["base"]
	if base.Threshold != 315 || base.Inclusive || base.WindowHours != 0 {
		t.Errorf("base profile parameters wrong: %+v", base)
	}
	berlin := profiles["berlin"]
	if berlin.Threshold != 300 || !berlin.Inclusive || berlin.WindowHours != 168 ||
		!berlin.RequirePEEPAtObs || !berlin.RequireInfiltratesFirst || berlin.Severity != SeverityPF {
		t.Errorf("berlin profile parameters wrong: %+v", berlin)
	}
	onset := profiles["onset"]
	if onset.Threshold != 315 || !onset.Inclusive || onset.WindowHours != 1 || onset.WindowFrom != RefICUIn {
		t.Errorf("onset profile parameters wrong: %+v", onset)
	}
}

func TestThresholdDirection(t *testing.T) {
	strict := Profile{Threshold: 315}
	if !strict.qualifies(314.999) || strict.qualifies(315) {
		t.Error("strict threshold should be ratio < 315")
	}
	inclusive := Profile{Threshold: 315, Inclusive: true}
	if !inclusive.qualifies(315) || inclusive.qualifies(315.001) {
		t.Error("inclusive threshold should be ratio <= 315")
	}
}

func TestSeverityBands(t *testing.T) {
	pf := Profile{Severity: SeverityPF}
	sf := Profile{Severity: SeveritySF}

	tests := []struct {
		prof  Profile
		ratio float64
		want  string
	}{
		{pf, 80, "severe"},
		{pf, 100, "severe"},
		{pf, 150, "moderate"},
		{pf, 200, "moderate"},
		{pf, 250, "mild"},
		{pf, 300, "mild"},
		{pf, 301, ""},
		{sf, 120, "severe"},
		{sf, 150, "severe"},
		{sf, 200, "moderate"},
		{sf, 235, "moderate"},
		{sf, 236, "mild"},
		{sf, 310, "mild"},
	}
	for _, tt := range tests {
		if got := tt.prof.SeverityFor(tt.ratio); got != tt.want {
			t.Errorf("SeverityFor(%v scale, %v) = %q, want %q",
				tt.prof.Severity, tt.ratio, got, tt.want)
		}
	}
}

func TestLoadProfilesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	content := `profiles:
  - name: strict_pf
    ratio: pf
    threshold: 200
    inclusive: true
    window_hours: 72
    window_from: icu_in
    severity_scale: pf
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	p, ok := profiles["strict_pf"]
	if !ok {
		t.Fatal("custom profile not loaded")
	}
	if p.Ratio != RatioPF || p.Threshold != 200 || p.WindowHours != 72 {
		t.Errorf("custom profile = %+v", p)
	}
	// Built-ins survive the merge.
	if _, ok := profiles["berlin"]; !ok {
		t.Error("builtin profiles should remain available")
	}
}

func TestLoadProfilesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := `profiles:
  - name: broken
    ratio: qq
    threshold: 100
    severity_scale: sf
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	if _, err := LoadProfiles(path); err == nil {
		t.Error("invalid ratio kind should be rejected")
	}
}
