package history

import (
	"testing"
	"time"
)

func pct(v float64) *float64 { return &v }

func sampleAt(i int) Sample {
	return Sample{
		Timestamp:     time.Unix(int64(i), 0),
		CPUPercent:    pct(float64(i)),
		MemoryPercent: pct(float64(i * 2)),
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	const capacity = 5
	b := NewBuffer(capacity)

	for i := 1; i <= capacity+1; i++ {
		b.Append(sampleAt(i))
	}

	got := b.Samples()
	if len(got) != capacity {
		t.Fatalf("len = %d, want %d", len(got), capacity)
	}
	for i, s := range got {
		want := time.Unix(int64(i+2), 0)
		if !s.Timestamp.Equal(want) {
			t.Errorf("sample[%d].Timestamp = %v, want %v", i, s.Timestamp, want)
		}
	}
}

func TestLengthNeverExceedsCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appends  int
		wantLen  int
	}{
		{"empty", 3, 0, 0},
		{"under capacity", 3, 2, 2},
		{"at capacity", 3, 3, 3},
		{"far over capacity", 3, 50, 3},
		{"capacity one", 1, 4, 1},
		{"invalid capacity clamps to one", 0, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.capacity)
			for i := 0; i < tt.appends; i++ {
				b.Append(sampleAt(i))
				if b.Len() > b.Cap() {
					t.Fatalf("len %d exceeded cap %d after %d appends", b.Len(), b.Cap(), i+1)
				}
			}
			if b.Len() != tt.wantLen {
				t.Errorf("Len = %d, want %d", b.Len(), tt.wantLen)
			}
		})
	}
}

func TestSamplesReturnsCopy(t *testing.T) {
	b := NewBuffer(2)
	b.Append(sampleAt(1))

	got := b.Samples()
	got[0].Timestamp = time.Time{}

	if b.Samples()[0].Timestamp.IsZero() {
		t.Error("mutating the returned slice changed the buffer")
	}
}

func TestNilPercentagesKept(t *testing.T) {
	b := NewBuffer(2)
	b.Append(Sample{Timestamp: time.Unix(1, 0)})

	got := b.Samples()
	if got[0].CPUPercent != nil || got[0].MemoryPercent != nil {
		t.Errorf("expected nil percentages, got %+v", got[0])
	}
}

func TestSpan(t *testing.T) {
	b := NewBuffer(60)
	if got := b.Span(5 * time.Second); got != 5*time.Minute {
		t.Errorf("Span = %v, want 5m", got)
	}
}
