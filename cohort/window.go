package cohort

import "time"

// WindowIndex maps stay and admission identifiers to their reference
// timestamps (ICU in-time, hospital admit time) so that events can be
// positioned relative to an admission window. Events whose identifier is
// unknown cannot be positioned and are dropped by callers; the index keeps
// a count of such lookups for the run summary.
type WindowIndex struct {
	stays      map[int64]ICUStay
	admissions map[int64]Admission

	missingStay int64
	missingAdm  int64
}

// NewWindowIndex builds the index. Duplicate stay rows keep the first
// occurrence; admissions are unique per hadm_id in the source.
func NewWindowIndex(admissions []Admission, stays []ICUStay) *WindowIndex {
	ix := &WindowIndex{
		stays:      make(map[int64]ICUStay, len(stays)),
		admissions: make(map[int64]Admission, len(admissions)),
	}
	for _, a := range admissions {
		ix.admissions[a.HadmID] = a
	}
	for _, s := range stays {
		if _, ok := ix.stays[s.StayID]; !ok {
			ix.stays[s.StayID] = s
		}
	}
	return ix
}

// StayInTime returns the ICU in-time for a stay. The second return is false
// when the stay is unknown or has a zero in-time (missing reference).
func (ix *WindowIndex) StayInTime(stayID int64) (time.Time, bool) {
	s, ok := ix.stays[stayID]
	if !ok || s.InTime.IsZero() {
		ix.missingStay++
		return time.Time{}, false
	}
	return s.InTime, true
}

// AdmitTime returns the hospital admit time for an admission.
func (ix *WindowIndex) AdmitTime(hadmID int64) (time.Time, bool) {
	a, ok := ix.admissions[hadmID]
	if !ok || a.AdmitTime.IsZero() {
		ix.missingAdm++
		return time.Time{}, false
	}
	return a.AdmitTime, true
}

// Stay returns the full stay row for an id. A miss counts as a failed
// stay lookup, like StayInTime: events resolved through here are dropped
// when the stay is unknown, and the summary must account for them.
func (ix *WindowIndex) Stay(stayID int64) (ICUStay, bool) {
	s, ok := ix.stays[stayID]
	if !ok {
		ix.missingStay++
	}
	return s, ok
}

// MissingReferences reports how many lookups failed because the stay or
// admission was unknown. These correspond to dropped events.
func (ix *WindowIndex) MissingReferences() (stays, admissions int64) {
	return ix.missingStay, ix.missingAdm
}

// ElapsedHours is the signed fractional number of hours from ref to t.
// Negative when t precedes the reference; window predicates exclude such
// values rather than clamping them to zero.
func ElapsedHours(t, ref time.Time) float64 {
	return t.Sub(ref).Hours()
}
