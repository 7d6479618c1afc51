// Package costguard samples cost and usage metrics on an interval, keeps a
// bounded rolling history, forecasts near-term spend, and reacts to threshold
// spikes with throttles, low-cost mode, or approval-gated cost actions.
package costguard

import "time"

// Per-unit rate table used to derive cost estimates from raw usage counters.
// Deliberately fixed constants: the estimates must stay explainable.
const (
	tokenRateUSD       = 0.000002 // per LLM token
	requestRateUSD     = 0.0001   // per API request
	transactionRateUSD = 0.003    // per billed transaction
	computeHourUSD     = 0.085    // per full-utilization compute hour
)

// WindowCap bounds the rolling sample window: one sample per minute for a day.
const WindowCap = 1440

// Sample is a timestamped snapshot of usage counters and derived cost
// estimates. Samples are append-only; the window evicts the oldest entry
// once it exceeds WindowCap.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	TokensUsed   float64   `json:"tokens_used"`
	Requests     float64   `json:"requests"`
	ComputePct   float64   `json:"compute_pct"`
	MemoryPct    float64   `json:"memory_pct"`
	Transactions float64   `json:"transactions"`
	DailyCost    float64   `json:"daily_cost"`
	MonthlyCost  float64   `json:"monthly_cost"`
}

// Usage is one reading from the metrics source collaborator.
type Usage struct {
	TokensUsed   float64
	Requests     float64
	ComputePct   float64
	MemoryPct    float64
	Transactions float64
}

// deriveCosts computes the daily and monthly cost estimates for a usage
// reading from the fixed rate table.
func deriveCosts(u Usage) (daily, monthly float64) {
	daily = u.TokensUsed*tokenRateUSD +
		u.Requests*requestRateUSD +
		u.Transactions*transactionRateUSD +
		(u.ComputePct/100.0)*24*computeHourUSD
	return daily, daily * 30
}

// metricValue extracts a named metric from a sample for rule evaluation.
// Unknown names return (0, false) so a misconfigured rule can never fire.
func metricValue(s *Sample, name string) (float64, bool) {
	switch name {
	case "tokens_used":
		return s.TokensUsed, true
	case "requests":
		return s.Requests, true
	case "compute_pct":
		return s.ComputePct, true
	case "memory_pct":
		return s.MemoryPct, true
	case "transactions":
		return s.Transactions, true
	case "daily_cost":
		return s.DailyCost, true
	case "monthly_cost":
		return s.MonthlyCost, true
	default:
		return 0, false
	}
}
