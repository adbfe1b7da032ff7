package cohort

import (
	"regexp"
	"time"
)

// TextClassifier decides whether one radiology report documents bilateral
// infiltrates. It is a replaceable collaborator: the pipeline only depends
// on this interface, so the regex rules below can be swapped for a trained
// model without touching the cohort logic.
type TextClassifier interface {
	Classify(text string) bool
}

// RegexClassifier flags reports whose text mentions bilateral (or diffuse
// bilateral) infiltrates, opacities, or consolidations within a short span,
// in either word order.
type RegexClassifier struct {
	patterns []*regexp.Regexp
}

// NewRegexClassifier builds the default bilateral-infiltrates matcher.
func NewRegexClassifier() *RegexClassifier {
	return &RegexClassifier{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?is)bilateral[^.]{0,80}?(infiltrat|opacit|consolidat|airspace disease)`),
		regexp.MustCompile(`(?is)(infiltrat|opacit|consolidat)[^.]{0,80}?bilateral`),
		regexp.MustCompile(`(?is)diffuse[^.]{0,40}?(infiltrat|opacit)`),
		regexp.MustCompile(`(?is)(infiltrat|opacit|consolidat)[^.]{0,60}?(both lungs|each lung)`),
	}}
}

// Classify reports whether any pattern matches the report text.
func (c *RegexClassifier) Classify(text string) bool {
	for _, p := range c.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// InfiltrateFindings aggregates per-report classifications to the admission
// level: an admission is positive if any of its reports is positive (OR
// semantics), and the earliest positive report's time is retained.
type InfiltrateFindings struct {
	Positive Set
	// FirstPositive maps hadm_id to the time of the earliest positive report.
	FirstPositive map[int64]time.Time
	// Reported holds every admission with at least one report of any kind.
	Reported Set
}

// ClassifyNotes runs the classifier over all radiology reports.
func ClassifyNotes(notes []RadiologyNote, classifier TextClassifier) InfiltrateFindings {
	f := InfiltrateFindings{
		Positive:      make(Set),
		FirstPositive: make(map[int64]time.Time),
		Reported:      make(Set),
	}
	for _, n := range notes {
		f.Reported.Add(n.HadmID)
		if !classifier.Classify(n.Text) {
			continue
		}
		f.Positive.Add(n.HadmID)
		if first, ok := f.FirstPositive[n.HadmID]; !ok || n.NoteTime.Before(first) {
			f.FirstPositive[n.HadmID] = n.NoteTime
		}
	}
	return f
}
