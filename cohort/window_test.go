package cohort

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2130, 5, 1, 0, 0, 0, 0, time.UTC)

func TestElapsedHours(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want float64
	}{
		{"simultaneous", t0, 0},
		{"one hour after", t0.Add(time.Hour), 1},
		{"90 minutes after", t0.Add(90 * time.Minute), 1.5},
		{"before reference is negative", t0.Add(-30 * time.Minute), -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ElapsedHours(tt.t, t0)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ElapsedHours = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowIndexLookups(t *testing.T) {
	adms := []Admission{{HadmID: 100, SubjectID: 1, AdmitTime: t0}}
	stays := []ICUStay{{StayID: 200, HadmID: 100, InTime: t0.Add(2 * time.Hour), OutTime: t0.Add(50 * time.Hour)}}
	ix := NewWindowIndex(adms, stays)

	if ref, ok := ix.StayInTime(200); !ok || !ref.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("StayInTime(200) = %v, %v", ref, ok)
	}
	if _, ok := ix.StayInTime(999); ok {
		t.Error("StayInTime(999) should miss")
	}
	if ref, ok := ix.AdmitTime(100); !ok || !ref.Equal(t0) {
		t.Errorf("AdmitTime(100) = %v, %v", ref, ok)
	}
	if _, ok := ix.AdmitTime(999); ok {
		t.Error("AdmitTime(999) should miss")
	}

	if _, ok := ix.Stay(200); !ok {
		t.Error("Stay(200) should hit")
	}
	if _, ok := ix.Stay(999); ok {
		t.Error("Stay(999) should miss")
	}

	// Missing lookups are counted, not raised; a Stay miss counts the same
	// as a StayInTime miss.
	stayMiss, admMiss := ix.MissingReferences()
	if stayMiss != 2 || admMiss != 1 {
		t.Errorf("MissingReferences = %d, %d, want 2, 1", stayMiss, admMiss)
	}
}

func TestWindowIndexDuplicateStayKeepsFirst(t *testing.T) {
	stays := []ICUStay{
		{StayID: 200, HadmID: 100, InTime: t0},
		{StayID: 200, HadmID: 100, InTime: t0.Add(time.Hour)},
	}
	ix := NewWindowIndex(nil, stays)
	ref, ok := ix.StayInTime(200)
	if !ok || !ref.Equal(t0) {
		t.Errorf("duplicate stay should keep first in-time, got %v", ref)
	}
}
