package costguard

import (
	"testing"
	"time"
)

func costSample(cost float64) Sample {
	return Sample{Timestamp: time.Now().UTC(), DailyCost: cost}
}

func TestWindow_AppendEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Append(costSample(float64(i)))
	}

	if w.Len() != 3 {
		t.Fatalf("expected len 3, got %d", w.Len())
	}
	got := w.Last(3)
	for i, want := range []float64{3, 4, 5} {
		if got[i].DailyCost != want {
			t.Errorf("sample %d: got %v, want %v", i, got[i].DailyCost, want)
		}
	}
}

func TestWindow_LastShortWindow(t *testing.T) {
	w := NewWindow(10)
	w.Append(costSample(1))
	w.Append(costSample(2))

	got := w.Last(5)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].DailyCost != 1 || got[1].DailyCost != 2 {
		t.Errorf("expected oldest-first order, got %v then %v", got[0].DailyCost, got[1].DailyCost)
	}
}

func TestWindow_RestoreTruncatesToCap(t *testing.T) {
	w := NewWindow(2)
	w.Restore([]Sample{costSample(1), costSample(2), costSample(3)})

	if w.Len() != 2 {
		t.Fatalf("expected len 2, got %d", w.Len())
	}
	got := w.Last(2)
	if got[0].DailyCost != 2 || got[1].DailyCost != 3 {
		t.Errorf("expected newest samples kept, got %v then %v", got[0].DailyCost, got[1].DailyCost)
	}
}

func TestDeriveCosts(t *testing.T) {
	daily, monthly := deriveCosts(Usage{
		TokensUsed:   1_000_000,
		Requests:     10_000,
		Transactions: 100,
		ComputePct:   50,
	})

	// 1M tokens at 0.000002 + 10k requests at 0.0001 + 100 tx at 0.003
	// + half a compute-day at 0.085/h.
	want := 2.0 + 1.0 + 0.3 + 0.5*24*0.085
	if diff := daily - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("daily: got %v, want %v", daily, want)
	}
	if diff := monthly - want*30; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("monthly: got %v, want %v", monthly, want*30)
	}
}

func TestMetricValue_UnknownMetric(t *testing.T) {
	s := costSample(10)
	if _, ok := metricValue(&s, "no_such_metric"); ok {
		t.Fatal("unknown metric must not resolve")
	}
}
