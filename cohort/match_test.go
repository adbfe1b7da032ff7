package cohort

import (
	"math"
	"testing"
	"time"
)

func ev(stay int64, minutesAfter int, value float64) ChartEvent {
	return ChartEvent{
		StayID:    stay,
		HadmID:    stay + 1000,
		ChartTime: t0.Add(time.Duration(minutesAfter) * time.Minute),
		Value:     fl(value),
	}
}

func TestPivotExact(t *testing.T) {
	num := []ChartEvent{
		ev(1, 0, 90),  // paired
		ev(1, 60, 92), // denominator missing at this instant
	}
	den := []ChartEvent{
		ev(1, 0, 0.30),
		ev(1, 120, 0.40), // numerator missing at this instant
	}

	obs := PivotExact(num, den)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Ratio != 90/0.30 {
		t.Errorf("ratio = %v, want %v", obs[0].Ratio, 90/0.30)
	}
	if !obs[0].Time.Equal(t0) {
		t.Errorf("observation time = %v", obs[0].Time)
	}
}

func TestPivotExactNoCrossStayPairing(t *testing.T) {
	num := []ChartEvent{ev(1, 0, 90)}
	den := []ChartEvent{ev(2, 0, 0.30)}
	if obs := PivotExact(num, den); len(obs) != 0 {
		t.Errorf("simultaneous readings on different stays must not pair: %+v", obs)
	}
}

func TestMatchNearest(t *testing.T) {
	num := []ChartEvent{ev(1, 60, 90)}
	den := []ChartEvent{
		ev(1, 0, 0.50),   // 60 min away
		ev(1, 75, 0.30),  // 15 min away, nearest
		ev(1, 300, 0.80), // outside interest
	}

	obs := MatchNearest(num, den, 2*time.Hour)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	want := 90 / 0.30
	if math.Abs(obs[0].Ratio-want)/want > 1e-9 {
		t.Errorf("ratio = %v, want %v", obs[0].Ratio, want)
	}
}

func TestMatchNearestToleranceCutoff(t *testing.T) {
	num := []ChartEvent{ev(1, 0, 90)}
	den := []ChartEvent{ev(1, 121, 0.30)} // 2h01m away

	if obs := MatchNearest(num, den, 2*time.Hour); len(obs) != 0 {
		t.Errorf("denominator outside tolerance must not pair: %+v", obs)
	}
	// At exactly the tolerance it pairs.
	den = []ChartEvent{ev(1, 120, 0.30)}
	if obs := MatchNearest(num, den, 2*time.Hour); len(obs) != 1 {
		t.Error("denominator at exactly the tolerance should pair")
	}
}

func TestMatchNearestTieBreakPrefersEarlier(t *testing.T) {
	num := []ChartEvent{ev(1, 60, 90)}
	den := []ChartEvent{
		ev(1, 30, 0.25), // 30 min before
		ev(1, 90, 0.50), // 30 min after
	}

	obs := MatchNearest(num, den, 2*time.Hour)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Denominator != 0.25 {
		t.Errorf("equidistant tie should prefer the earlier denominator, got %v", obs[0].Denominator)
	}
}

func TestNonPositiveDenominatorsExcluded(t *testing.T) {
	num := []ChartEvent{ev(1, 0, 95)}
	den := []ChartEvent{
		ev(1, 0, 0),    // FiO2 recorded as zero
		ev(1, 5, -0.3), // nonsense negative
	}

	if obs := PivotExact(num, den); len(obs) != 0 {
		t.Errorf("zero denominator must yield no observation, got %+v", obs)
	}
	if obs := MatchNearest(num, den, 2*time.Hour); len(obs) != 0 {
		t.Errorf("non-positive denominators must yield no observation, got %+v", obs)
	}
}

func TestMatcherEmptyInputs(t *testing.T) {
	if obs := MatchNearest(nil, []ChartEvent{ev(1, 0, 0.3)}, time.Hour); obs != nil {
		t.Errorf("no numerators should produce nil, got %+v", obs)
	}
	if obs := MatchNearest([]ChartEvent{ev(1, 0, 90)}, nil, time.Hour); obs != nil {
		t.Errorf("no denominators should produce nil, got %+v", obs)
	}
	if obs := PivotExact(nil, nil); obs != nil {
		t.Errorf("empty inputs should produce nil, got %+v", obs)
	}
}

func TestRatioExactArithmetic(t *testing.T) {
	num := []ChartEvent{ev(1, 0, 93)}
	den := []ChartEvent{ev(1, 0, 0.31)}

	obs := PivotExact(num, den)
	if len(obs) != 1 {
		t.Fatal("expected 1 observation")
	}
	o := obs[0]
	if o.Denominator <= 0 {
		t.Error("denominator must be strictly positive")
	}
	if rel := math.Abs(o.Ratio-o.Numerator/o.Denominator) / o.Ratio; rel > 1e-9 {
		t.Errorf("ratio drifts from numerator/denominator by %v", rel)
	}
}
