package costguard

// Trend factor bounds and confidence tiers for the naive forecast.
const (
	trendWindow        = 24 // samples per comparison block
	trendIncreasing    = 1.2
	trendDecreasing    = 0.8
	confidenceMediumAt = 24  // below this: low
	confidenceHighAt   = 168 // below this: medium
)

// Forecast is the near-term spend prediction. The model is a deliberate
// ratio-of-means over the last two 24-sample blocks, not a statistical
// model: it must stay explainable to an operator reading the dashboard.
type Forecast struct {
	PredictedCost float64 `json:"predicted_cost"`
	TrendFactor   float64 `json:"trend_factor"`
	Trend         string  `json:"trend"`      // "increasing", "decreasing", "stable"
	Confidence    string  `json:"confidence"` // "low", "medium", "high"
	Samples       int     `json:"samples"`
}

// ForecastNextPeriod computes the spend forecast from the rolling window.
//
// trend factor = mean(last 24 samples) / mean(24 samples before that);
// predicted cost = recent mean × trend factor. With fewer than two full
// blocks the factor is 1.0 (stable).
func (w *Window) ForecastNextPeriod() Forecast {
	n := w.Len()

	f := Forecast{
		TrendFactor: 1.0,
		Trend:       "stable",
		Confidence:  confidenceFor(n),
		Samples:     n,
	}

	recent := w.Last(trendWindow)
	f.PredictedCost = meanDailyCost(recent)

	if n >= 2*trendWindow {
		both := w.Last(2 * trendWindow)
		prior := both[:trendWindow]
		priorMean := meanDailyCost(prior)
		recentMean := meanDailyCost(both[trendWindow:])
		if priorMean > 0 {
			f.TrendFactor = recentMean / priorMean
		}
		f.PredictedCost = recentMean * f.TrendFactor
	}

	switch {
	case f.TrendFactor > trendIncreasing:
		f.Trend = "increasing"
	case f.TrendFactor < trendDecreasing:
		f.Trend = "decreasing"
	default:
		f.Trend = "stable"
	}

	return f
}

func confidenceFor(samples int) string {
	switch {
	case samples < confidenceMediumAt:
		return "low"
	case samples < confidenceHighAt:
		return "medium"
	default:
		return "high"
	}
}

// Summary is the forecast document consumed by the dashboard collaborator.
type Summary struct {
	Forecast
	BudgetRemaining   float64 `json:"budget_remaining"`
	BudgetPercentUsed float64 `json:"budget_percent_used"`
	LowCostMode       bool    `json:"low_cost_mode"`
}
