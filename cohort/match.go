package cohort

import (
	"sort"
	"time"
)

// The paired-measurement matcher derives ratio observations (e.g. SpO2/FiO2)
// from two asynchronous measurement streams. Pairing is keyed by stay, never
// by admission, so measurements cannot leak across distinct ICU stays of the
// same hospitalization.
//
// Denominator readings that are not strictly positive are removed before
// matching: a zero or negative denominator yields no observation, never an
// infinite or negative ratio.

// sortEvents orders events by (stay, time) with a stable sort so that
// equal-time readings keep source order. Both strategies rely on this.
func sortEvents(events []ChartEvent) []ChartEvent {
	out := make([]ChartEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StayID != out[j].StayID {
			return out[i].StayID < out[j].StayID
		}
		return out[i].ChartTime.Before(out[j].ChartTime)
	})
	return out
}

// positiveDen drops denominator readings with nil, zero, or negative values.
func positiveDen(den []ChartEvent) []ChartEvent {
	out := den[:0:0]
	for _, ev := range den {
		if ev.Value != nil && *ev.Value > 0 {
			out = append(out, ev)
		}
	}
	return out
}

func groupByStay(events []ChartEvent) map[int64][]ChartEvent {
	out := make(map[int64][]ChartEvent)
	for _, ev := range events {
		out[ev.StayID] = append(out[ev.StayID], ev)
	}
	return out
}

func makeObservation(num, den ChartEvent) Observation {
	return Observation{
		StayID:      num.StayID,
		HadmID:      num.HadmID,
		Time:        num.ChartTime,
		Numerator:   *num.Value,
		Denominator: *den.Value,
		Ratio:       *num.Value / *den.Value,
	}
}

// PivotExact pairs numerator and denominator readings charted at the exact
// same instant on the same stay. A timestamp carrying only one of the two
// kinds yields no observation. When a timestamp carries several denominator
// readings the earliest-charted one is used.
func PivotExact(num, den []ChartEvent) []Observation {
	den = positiveDen(den)
	if len(num) == 0 || len(den) == 0 {
		return nil
	}

	type slot struct {
		stay int64
		t    int64
	}
	denAt := make(map[slot]ChartEvent, len(den))
	for _, ev := range sortEvents(den) {
		key := slot{ev.StayID, ev.ChartTime.UnixNano()}
		if _, ok := denAt[key]; !ok {
			denAt[key] = ev
		}
	}

	var obs []Observation
	for _, ev := range sortEvents(num) {
		if ev.Value == nil {
			continue
		}
		if d, ok := denAt[slot{ev.StayID, ev.ChartTime.UnixNano()}]; ok {
			obs = append(obs, makeObservation(ev, d))
		}
	}
	return obs
}

// MatchNearest pairs each numerator reading with the denominator reading
// nearest in time on the same stay, within tolerance. Readings with no
// denominator inside the tolerance window produce no observation. When two
// denominators are equidistant the earlier one wins, which together with the
// stable sort makes the output deterministic.
func MatchNearest(num, den []ChartEvent, tolerance time.Duration) []Observation {
	den = positiveDen(den)
	if len(num) == 0 || len(den) == 0 {
		return nil
	}

	denByStay := groupByStay(sortEvents(den))

	var obs []Observation
	for _, ev := range sortEvents(num) {
		if ev.Value == nil {
			continue
		}
		candidates := denByStay[ev.StayID]
		if len(candidates) == 0 {
			continue
		}
		d, ok := nearest(candidates, ev.ChartTime, tolerance)
		if !ok {
			continue
		}
		obs = append(obs, makeObservation(ev, d))
	}
	return obs
}

// nearest finds the event in sorted closest to t within tolerance. Ties on
// absolute distance prefer the earlier event.
func nearest(sorted []ChartEvent, t time.Time, tolerance time.Duration) (ChartEvent, bool) {
	// First candidate at or after t.
	i := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].ChartTime.Before(t)
	})

	var best ChartEvent
	var bestDist time.Duration
	found := false

	consider := func(ev ChartEvent) {
		dist := ev.ChartTime.Sub(t)
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			return
		}
		// Strict < keeps the earlier event on equidistant ties, because the
		// earlier (before-t) candidate is always considered first.
		if !found || dist < bestDist {
			best, bestDist, found = ev, dist, true
		}
	}

	if i > 0 {
		consider(sorted[i-1])
	}
	if i < len(sorted) {
		consider(sorted[i])
	}
	return best, found
}

// DeriveRatios runs the configured matching strategy.
func DeriveRatios(strategy MatchStrategy, num, den []ChartEvent, tolerance time.Duration) []Observation {
	if strategy == MatchExact {
		return PivotExact(num, den)
	}
	return MatchNearest(num, den, tolerance)
}

// MatchStrategy selects how numerator and denominator streams are paired.
type MatchStrategy int

const (
	// MatchExact pairs only readings charted at the identical timestamp.
	MatchExact MatchStrategy = iota
	// MatchNearestTime pairs each numerator with the nearest denominator
	// within the configured tolerance.
	MatchNearestTime
)

func (m MatchStrategy) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "nearest"
}
