package domain

// FeatureCount is the fixed width of the model input vector.
const FeatureCount = 7

// FeatureVector holds the derived features for one price point.
// Never persisted. Trend and Volatility are nil when fewer than a full
// rolling window of history precedes the point; such vectors are excluded
// from training, never zero-filled.
type FeatureVector struct {
	TimestampMs   int64    // Unix ms of the underlying observation or future date
	DayOfWeek     int      // 0=Sunday .. 6=Saturday
	Month         int      // 1..12
	IsHoliday     bool     // timestamp falls on a known holiday
	DaysToHoliday int      // days until next known holiday, 365 sentinel if none remains
	Trend         *float64 // rolling mean over the trailing window, nil if insufficient history
	Volatility    *float64 // rolling stddev over the trailing window, nil if insufficient history
	StoreDiff     float64  // price minus cross-store mean at this timestamp
}

// Complete reports whether the vector has all rolling features defined.
func (fv *FeatureVector) Complete() bool {
	return fv.Trend != nil && fv.Volatility != nil
}

// Values flattens the vector into model input order. Returns false when the
// rolling features are undefined.
func (fv *FeatureVector) Values() ([FeatureCount]float64, bool) {
	var out [FeatureCount]float64
	if !fv.Complete() {
		return out, false
	}
	holiday := 0.0
	if fv.IsHoliday {
		holiday = 1.0
	}
	out = [FeatureCount]float64{
		float64(fv.DayOfWeek),
		float64(fv.Month),
		holiday,
		float64(fv.DaysToHoliday),
		*fv.Trend,
		*fv.Volatility,
		fv.StoreDiff,
	}
	return out, true
}
