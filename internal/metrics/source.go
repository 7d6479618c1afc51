// Package metrics exposes the platform's usage counters as Prometheus
// metrics and reads them back as cost-guard samples. Counters are the shared
// ledger: route handlers and workers increment them, the cost guard samples
// them.
package metrics

import (
	"context"
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/flowforge-ai/autopilot/internal/costguard"
)

// Counters are the usage counters sampled by the cost guard.
type Counters struct {
	TokensUsed   prometheus.Counter
	Requests     prometheus.Counter
	Transactions prometheus.Counter
}

// NewCounters registers the usage counters on the given registerer.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_tokens_used_total",
			Help: "LLM tokens consumed by autonomous subsystems.",
		}),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_requests_total",
			Help: "API requests served.",
		}),
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_transactions_total",
			Help: "Billed transactions processed.",
		}),
	}
	reg.MustRegister(c.TokensUsed, c.Requests, c.Transactions)
	return c
}

// Source reads usage counters and process introspection into a cost-guard
// usage snapshot.
type Source struct {
	counters *Counters

	// memoryBudgetBytes converts heap usage into a percentage.
	memoryBudgetBytes float64
}

// NewSource creates a Source over the given counters.
// memoryBudgetMB sets the 100% mark for the memory percentage.
func NewSource(counters *Counters, memoryBudgetMB int) *Source {
	if memoryBudgetMB <= 0 {
		memoryBudgetMB = 512
	}
	return &Source{
		counters:          counters,
		memoryBudgetBytes: float64(memoryBudgetMB) * 1024 * 1024,
	}
}

// Collect reads the current counter values and process memory usage into a
// cost-guard usage snapshot.
func (s *Source) Collect(_ context.Context) (costguard.Usage, error) {
	tokens, err := counterValue(s.counters.TokensUsed)
	if err != nil {
		return costguard.Usage{}, fmt.Errorf("Collect: %w", err)
	}
	requests, err := counterValue(s.counters.Requests)
	if err != nil {
		return costguard.Usage{}, fmt.Errorf("Collect: %w", err)
	}
	transactions, err := counterValue(s.counters.Transactions)
	if err != nil {
		return costguard.Usage{}, fmt.Errorf("Collect: %w", err)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memPct := float64(mem.HeapAlloc) / s.memoryBudgetBytes * 100
	if memPct > 100 {
		memPct = 100
	}

	// GC CPU fraction is the cheapest in-process proxy for compute pressure.
	computePct := mem.GCCPUFraction * 100

	return costguard.Usage{
		TokensUsed:   tokens,
		Requests:     requests,
		ComputePct:   computePct,
		MemoryPct:    memPct,
		Transactions: transactions,
	}, nil
}

// counterValue reads a Counter's current value through the client_model
// protobuf, the supported way to observe a metric in-process.
func counterValue(c prometheus.Counter) (float64, error) {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0, err
	}
	return m.GetCounter().GetValue(), nil
}
