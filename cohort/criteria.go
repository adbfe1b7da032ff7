package cohort

import (
	"sort"
	"time"
)

// Criteria stages. Each stage is a pure function from input rows to a Set of
// qualifying admission ids; the final cohort is the intersection of all
// inclusion stages minus the union of all exclusion stages. Every stage is
// total over empty input and returns an empty set rather than failing, so a
// cohort of zero propagates cleanly to the end of the run.

// FilterAge returns the admissions where the derived age at admit time is at
// least minYears. Admissions whose patient row is missing cannot be aged and
// are dropped.
func FilterAge(patients map[int64]Patient, admissions []Admission, minYears int) Set {
	out := make(Set)
	for _, a := range admissions {
		p, ok := patients[a.SubjectID]
		if !ok {
			continue
		}
		if a.AgeAtAdmission(p) >= minYears {
			out.Add(a.HadmID)
		}
	}
	return out
}

// FilterICUPresence returns the admissions with at least one ICU stay row.
// Inner-join semantics: admissions without a stay are silently excluded.
func FilterICUPresence(stays []ICUStay) Set {
	out := make(Set)
	for _, s := range stays {
		out.Add(s.HadmID)
	}
	return out
}

// FilterPEEPWindow returns the admissions with at least one PEEP reading of
// minValue or more charted between 0 and maxHours hours after the ICU
// in-time of its own stay. Both bounds are inclusive; readings charted
// before the in-time never qualify, however close. Events whose stay is not
// in the index are dropped.
func FilterPEEPWindow(peep []ChartEvent, ix *WindowIndex, maxHours, minValue float64) Set {
	out := make(Set)
	for _, ev := range peep {
		if ev.Value == nil || *ev.Value < minValue {
			continue
		}
		ref, ok := ix.StayInTime(ev.StayID)
		if !ok {
			continue
		}
		h := ElapsedHours(ev.ChartTime, ref)
		if h < 0 || h > maxHours {
			continue
		}
		out.Add(ev.HadmID)
	}
	return out
}

// Onset is the earliest qualifying ratio observation for one stay.
type Onset struct {
	StayID int64
	Time   time.Time
	Ratio  float64
}

// RatioResult is the outcome of the ratio-threshold stage: the qualifying
// admission set plus the earliest qualifying observation per stay.
type RatioResult struct {
	Admissions Set
	Onsets     map[int64]Onset
}

// FilterRatio applies a profile's ratio criterion to the derived
// observations. Window positioning is keyed by stay (ICU in-time) or by
// admission (admit time) depending on the profile; observations whose
// reference is missing are dropped. When the profile requires bilateral
// infiltrates first, only observations at or after the admission's earliest
// positive report qualify. When it co-requires PEEP, the most recent PEEP
// setting at or before the observation on the same stay must be >= 5.
func FilterRatio(obs []Observation, prof Profile, ix *WindowIndex,
	infiltrates map[int64]time.Time, peep []ChartEvent) RatioResult {

	res := RatioResult{
		Admissions: make(Set),
		Onsets:     make(map[int64]Onset),
	}

	var peepIdx *peepIndex
	if prof.RequirePEEPAtObs {
		peepIdx = newPEEPIndex(peep)
	}

	for _, o := range obs {
		if !prof.qualifies(o.Ratio) {
			continue
		}

		if prof.WindowHours > 0 {
			var ref time.Time
			var ok bool
			switch prof.WindowFrom {
			case RefICUIn:
				ref, ok = ix.StayInTime(o.StayID)
			default:
				ref, ok = ix.AdmitTime(o.HadmID)
			}
			if !ok {
				continue
			}
			h := ElapsedHours(o.Time, ref)
			if h < 0 || h > prof.WindowHours {
				continue
			}
		}

		if prof.RequireInfiltratesFirst {
			first, ok := infiltrates[o.HadmID]
			if !ok || o.Time.Before(first) {
				continue
			}
		}

		if peepIdx != nil {
			v, ok := peepIdx.latestAtOrBefore(o.StayID, o.Time)
			if !ok || v < 5 {
				continue
			}
		}

		res.Admissions.Add(o.HadmID)
		if cur, ok := res.Onsets[o.StayID]; !ok || o.Time.Before(cur.Time) {
			res.Onsets[o.StayID] = Onset{StayID: o.StayID, Time: o.Time, Ratio: o.Ratio}
		}
	}
	return res
}

// peepIndex answers "what was the PEEP setting at time t" per stay.
type peepIndex struct {
	byStay map[int64][]ChartEvent // sorted by time
}

func newPEEPIndex(peep []ChartEvent) *peepIndex {
	byStay := make(map[int64][]ChartEvent)
	for _, ev := range peep {
		if ev.Value == nil {
			continue
		}
		byStay[ev.StayID] = append(byStay[ev.StayID], ev)
	}
	for id := range byStay {
		evs := byStay[id]
		sort.SliceStable(evs, func(i, j int) bool {
			return evs[i].ChartTime.Before(evs[j].ChartTime)
		})
		byStay[id] = evs
	}
	return &peepIndex{byStay: byStay}
}

// latestAtOrBefore returns the most recent PEEP value charted at or before t
// on the given stay.
func (px *peepIndex) latestAtOrBefore(stayID int64, t time.Time) (float64, bool) {
	evs := px.byStay[stayID]
	if len(evs) == 0 {
		return 0, false
	}
	// First event strictly after t.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].ChartTime.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return *evs[i-1].Value, true
}

// FilterRadiologyPresence returns the admissions with at least one radiology
// report row.
func FilterRadiologyPresence(findings InfiltrateFindings) Set {
	return findings.Reported
}

// Exclusions returns the union of the heart-failure and pregnancy exclusion
// sets. An admission matching both is excluded exactly once.
func Exclusions(diagnoses []Diagnosis) Set {
	hf := AdmissionsMatching(diagnoses, IsHeartFailureCode)
	preg := AdmissionsMatching(diagnoses, IsPregnancyCode)
	return Union(hf, preg)
}
