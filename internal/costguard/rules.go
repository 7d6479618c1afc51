package costguard

import (
	"time"

	"github.com/google/uuid"
)

// hysteresisBand is the recovery bound: an alert clears only once its metric
// falls to 90% of threshold or below, preventing flapping around the line.
const hysteresisBand = 0.9

// Auto actions a rule may bind. Rules with RequiresApproval never
// self-execute; they enqueue an impact-C action instead.
const (
	AutoThrottleAI  = "throttle_ai"
	AutoLowCostMode = "enable_low_cost_mode"
	AutoNone        = ""
)

// Rule binds a metric threshold to a severity and a reaction.
type Rule struct {
	Metric           string
	Threshold        float64
	Severity         string // "warning", "critical"
	AutoAction       string
	RequiresApproval bool
}

// DefaultRules is the fixed rule table evaluated against every sample.
var DefaultRules = []Rule{
	{Metric: "daily_cost", Threshold: 50, Severity: "warning", AutoAction: AutoThrottleAI},
	{Metric: "monthly_cost", Threshold: 2000, Severity: "critical", AutoAction: AutoLowCostMode, RequiresApproval: true},
	{Metric: "tokens_used", Threshold: 2_000_000, Severity: "warning", AutoAction: AutoThrottleAI},
	{Metric: "requests", Threshold: 100_000, Severity: "warning", AutoAction: AutoThrottleAI},
	{Metric: "compute_pct", Threshold: 90, Severity: "critical", AutoAction: AutoLowCostMode},
	{Metric: "memory_pct", Threshold: 90, Severity: "warning", AutoAction: AutoNone},
}

// Alert records a metric threshold breach. At most one active (unresolved)
// alert exists per metric at a time.
type Alert struct {
	ID               string     `json:"id"`
	Metric           string     `json:"metric_name"`
	Severity         string     `json:"severity"`
	CurrentValue     float64    `json:"current_value"`
	Threshold        float64    `json:"threshold_value"`
	PercentOver      float64    `json:"percent_over"`
	DetectedAt       time.Time  `json:"detected_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	AutoAction       string     `json:"auto_action,omitempty"`
	RequiresApproval bool       `json:"requires_approval"`
}

// Detector is the stateless rule evaluator. Alert state lives in the guard's
// persisted alert set and is passed in per evaluation.
type Detector struct {
	rules []Rule
}

// NewDetector creates a detector over the given rule table.
func NewDetector(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

// Evaluation is the outcome of one detector pass over a sample.
type Evaluation struct {
	Raised   []*Alert // newly created alerts, reactions still to be applied
	Resolved []*Alert // previously active alerts now recovered
}

// Evaluate checks every rule against the sample.
//
// A breach with no active alert for that metric raises one. A breach with an
// active alert is skipped (no alert storms). An active alert whose metric
// has fallen to the hysteresis band or below is resolved and timestamped.
func (d *Detector) Evaluate(sample *Sample, active map[string]*Alert, now time.Time) Evaluation {
	var ev Evaluation

	for _, rule := range d.rules {
		value, ok := metricValue(sample, rule.Metric)
		if !ok {
			continue
		}

		existing := active[rule.Metric]

		if value > rule.Threshold {
			if existing != nil {
				continue // already alerted for this metric
			}
			alert := &Alert{
				ID:               uuid.New().String(),
				Metric:           rule.Metric,
				Severity:         rule.Severity,
				CurrentValue:     value,
				Threshold:        rule.Threshold,
				PercentOver:      (value - rule.Threshold) / rule.Threshold * 100,
				DetectedAt:       now,
				AutoAction:       rule.AutoAction,
				RequiresApproval: rule.RequiresApproval,
			}
			active[rule.Metric] = alert
			ev.Raised = append(ev.Raised, alert)
			continue
		}

		if existing != nil && value <= existing.Threshold*hysteresisBand {
			t := now
			existing.ResolvedAt = &t
			existing.CurrentValue = value
			delete(active, rule.Metric)
			ev.Resolved = append(ev.Resolved, existing)
		}
	}

	return ev
}
