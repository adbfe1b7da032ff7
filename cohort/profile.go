package cohort

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RatioKind selects which oxygenation index a profile thresholds on.
type RatioKind string

const (
	RatioSF RatioKind = "sf" // SpO2 / FiO2
	RatioPF RatioKind = "pf" // PaO2 / FiO2
)

// WindowRef selects the reference timestamp a profile's window counts from.
type WindowRef string

const (
	RefAdmission WindowRef = "admission"
	RefICUIn     WindowRef = "icu_in"
)

// SeverityScale selects the band table used to categorize onset ratios. The
// P/F bands are the Berlin-definition cutoffs; the S/F bands are the
// noninvasive surrogate cutoffs. The two scales are deliberately distinct
// and are never mixed.
type SeverityScale string

const (
	SeverityPF SeverityScale = "pf"
	SeveritySF SeverityScale = "sf"
)

// Profile names one complete set of ratio-criterion parameters. The three
// built-in profiles reflect three independently used variants of the
// oxygenation criterion; none supersedes the others.
type Profile struct {
	Name string `yaml:"name"`

	// Ratio is the index being thresholded (numerator/denominator kinds).
	Ratio RatioKind `yaml:"ratio"`

	// Threshold is the qualifying cutoff. Inclusive selects ratio <= threshold
	// over ratio < threshold.
	Threshold float64 `yaml:"threshold"`
	Inclusive bool    `yaml:"inclusive"`

	// WindowHours bounds qualifying observations to the first N hours after
	// the reference; zero means the whole stay qualifies.
	WindowHours float64   `yaml:"window_hours"`
	WindowFrom  WindowRef `yaml:"window_from"`

	// RequirePEEPAtObs additionally requires the most recent PEEP setting at
	// or before the observation to be >= 5 cm H2O.
	RequirePEEPAtObs bool `yaml:"require_peep_at_obs"`

	// RequireInfiltratesFirst restricts qualifying observations to those at
	// or after the admission's earliest bilateral-infiltrates report.
	RequireInfiltratesFirst bool `yaml:"require_infiltrates_first"`

	// Severity selects the band table for the onset ratio.
	Severity SeverityScale `yaml:"severity_scale"`
}

// Built-in criteria profiles.
var builtinProfiles = []Profile{
	{
		Name:      "base",
		Ratio:     RatioSF,
		Threshold: 315,
		Inclusive: false,
		Severity:  SeveritySF,
	},
	{
		Name:                    "berlin",
		Ratio:                   RatioSF,
		Threshold:               300,
		Inclusive:               true,
		WindowHours:             168,
		WindowFrom:              RefAdmission,
		RequirePEEPAtObs:        true,
		RequireInfiltratesFirst: true,
		Severity:                SeverityPF,
	},
	{
		Name:        "onset",
		Ratio:       RatioSF,
		Threshold:   315,
		Inclusive:   true,
		WindowHours: 1,
		WindowFrom:  RefICUIn,
		Severity:    SeveritySF,
	},
}

// Profiles holds the named criteria profiles available to a run.
type Profiles map[string]Profile

// BuiltinProfiles returns the three standard profiles.
func BuiltinProfiles() Profiles {
	out := make(Profiles, len(builtinProfiles))
	for _, p := range builtinProfiles {
		out[p.Name] = p
	}
	return out
}

// LoadProfiles reads additional profiles from a YAML file and merges them
// over the built-ins. A file profile with a built-in name replaces it.
func LoadProfiles(path string) (Profiles, error) {
	out := BuiltinProfiles()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	var file struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		out[p.Name] = p
	}
	return out, nil
}

// Validate rejects profiles that cannot be evaluated.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("missing name")
	}
	if p.Ratio != RatioSF && p.Ratio != RatioPF {
		return fmt.Errorf("ratio must be %q or %q, got %q", RatioSF, RatioPF, p.Ratio)
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", p.Threshold)
	}
	if p.WindowHours < 0 {
		return fmt.Errorf("window_hours must be >= 0, got %v", p.WindowHours)
	}
	if p.WindowHours > 0 && p.WindowFrom != RefAdmission && p.WindowFrom != RefICUIn {
		return fmt.Errorf("window_from must be %q or %q when a window is set", RefAdmission, RefICUIn)
	}
	if p.Severity != SeveritySF && p.Severity != SeverityPF {
		return fmt.Errorf("severity_scale must be %q or %q, got %q", SeveritySF, SeverityPF, p.Severity)
	}
	return nil
}

// qualifies applies the threshold direction.
func (p Profile) qualifies(ratio float64) bool {
	if p.Inclusive {
		return ratio <= p.Threshold
	}
	return ratio < p.Threshold
}

// SeverityFor categorizes an onset ratio on the profile's scale. The empty
// string means the ratio falls above the mild band (no ARDS-range severity).
func (p Profile) SeverityFor(ratio float64) string {
	switch p.Severity {
	case SeverityPF:
		// Berlin P/F bands: severe <=100, moderate 100-200, mild 200-300.
		switch {
		case ratio <= 100:
			return "severe"
		case ratio <= 200:
			return "moderate"
		case ratio <= 300:
			return "mild"
		}
	case SeveritySF:
		// S/F surrogate bands: severe <=150, moderate 150-235, mild >235.
		switch {
		case ratio <= 150:
			return "severe"
		case ratio <= 235:
			return "moderate"
		default:
			return "mild"
		}
	}
	return ""
}
