package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSource_CollectReflectsCounters(t *testing.T) {
	counters := NewCounters(prometheus.NewRegistry())
	counters.TokensUsed.Add(5000)
	counters.Requests.Add(120)
	counters.Transactions.Add(3)

	usage, err := NewSource(counters, 512).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if usage.TokensUsed != 5000 {
		t.Errorf("tokens: got %v, want 5000", usage.TokensUsed)
	}
	if usage.Requests != 120 {
		t.Errorf("requests: got %v, want 120", usage.Requests)
	}
	if usage.Transactions != 3 {
		t.Errorf("transactions: got %v, want 3", usage.Transactions)
	}
	if usage.MemoryPct < 0 || usage.MemoryPct > 100 {
		t.Errorf("memory pct out of range: %v", usage.MemoryPct)
	}
}

func TestNewSource_DefaultMemoryBudget(t *testing.T) {
	s := NewSource(NewCounters(prometheus.NewRegistry()), 0)
	if s.memoryBudgetBytes != 512*1024*1024 {
		t.Errorf("expected 512MB default, got %v bytes", s.memoryBudgetBytes)
	}
}
