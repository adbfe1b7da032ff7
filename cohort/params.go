package cohort

import "sort"

// Kind is the semantic parameter a raw chart event measures.
type Kind int

const (
	KindUnknown Kind = iota
	KindPEEP
	KindSpO2
	KindFiO2
	KindPaO2
)

func (k Kind) String() string {
	switch k {
	case KindPEEP:
		return "peep"
	case KindSpO2:
		return "spo2"
	case KindFiO2:
		return "fio2"
	case KindPaO2:
		return "pao2"
	default:
		return "unknown"
	}
}

// itemKinds maps chart item ids to their semantic kind. The ids are the
// metavision itemids for ventilator PEEP (set and total), pulse-oximetry
// SpO2, inspired O2 fraction, and arterial O2 pressure. Items outside this
// table classify as KindUnknown and are discarded downstream.
var itemKinds = map[int64]Kind{
	220339: KindPEEP, // PEEP set
	224700: KindPEEP, // Total PEEP level
	220277: KindSpO2, // O2 saturation pulseoxymetry
	223835: KindFiO2, // Inspired O2 fraction
	220224: KindPaO2, // Arterial O2 pressure
}

// Classify maps a raw item id to its semantic kind.
func Classify(itemID int64) Kind {
	return itemKinds[itemID]
}

// RelevantItemIDs lists every item id the pipeline cares about, in
// ascending order. Sources that can filter server-side (SQL, parquet
// predicate pushdown) use this to avoid shipping irrelevant rows.
func RelevantItemIDs() []int64 {
	ids := make([]int64, 0, len(itemKinds))
	for id := range itemKinds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NormalizeFiO2 converts FiO2 values recorded as percentages into fractions.
// Any value > 1 is treated as a percentage and divided by 100; values <= 1
// are assumed already fractional and returned unchanged, so applying the
// normalization twice is a no-op.
//
// Known ambiguity, accepted as-is: a true FiO2 of exactly 1.0 (100% oxygen
// already expressed as a fraction) is indistinguishable from a normalized
// value, and a value like 1.5 could mean either 150% (bad data) or 1.5%
// recorded in fraction units. The >1 heuristic matches how the charted data
// is actually entered (percent scale) and is not corrected further.
func NormalizeFiO2(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// ClassifyStats records how many streamed events were discarded during
// classification, and why.
type ClassifyStats struct {
	Total       int64
	NullValue   int64
	UnknownItem int64
	Kept        int64
}

// Collector accumulates classified events from a streamed chart-event
// source. Only events that classify to a known kind are retained, so the
// accumulated size is bounded by the number of relevant measurements, not
// the size of the source table.
type Collector struct {
	byKind map[Kind][]ChartEvent
	stats  ClassifyStats
}

func NewCollector() *Collector {
	return &Collector{byKind: make(map[Kind][]ChartEvent, 4)}
}

// Add classifies one event and retains it if relevant.
func (c *Collector) Add(ev ChartEvent) {
	c.stats.Total++
	if ev.Value == nil {
		c.stats.NullValue++
		return
	}
	kind := Classify(ev.ItemID)
	if kind == KindUnknown {
		c.stats.UnknownItem++
		return
	}
	if kind == KindFiO2 {
		v := NormalizeFiO2(*ev.Value)
		ev.Value = &v
	}
	c.byKind[kind] = append(c.byKind[kind], ev)
	c.stats.Kept++
}

// Events returns the retained events of one kind.
func (c *Collector) Events(k Kind) []ChartEvent {
	return c.byKind[k]
}

// Stats returns classification counters for the run summary.
func (c *Collector) Stats() ClassifyStats {
	return c.stats
}
