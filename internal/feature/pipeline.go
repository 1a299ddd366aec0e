// Package feature derives the fixed model input vector from an ordered
// price history: calendar features, rolling trend and volatility over a
// trailing window, and the differential from the cross-store mean.
package feature

import (
	"math"
	"sort"
	"time"

	"smartcart-engine/internal/domain"
)

// Window is the trailing observation count for rolling features. The first
// Window-1 points of a history have undefined trend and volatility.
const Window = 7

// HistoricalVectors derives one vector per observation. Input order does
// not matter; observations are sorted by observed_at internally.
func HistoricalVectors(obs []*domain.PriceObservation) []*domain.FeatureVector {
	if len(obs) == 0 {
		return nil
	}

	sorted := make([]*domain.PriceObservation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ObservedAtMs != sorted[j].ObservedAtMs {
			return sorted[i].ObservedAtMs < sorted[j].ObservedAtMs
		}
		return sorted[i].ID < sorted[j].ID
	})

	// Latest price per store as of each point, for the cross-store mean.
	latestByStore := make(map[string]float64)

	out := make([]*domain.FeatureVector, len(sorted))
	for i, o := range sorted {
		latestByStore[o.StoreID] = o.Price

		fv := calendarVector(o.ObservedAtMs)
		fv.StoreDiff = o.Price - crossStoreMean(latestByStore)

		if i >= Window-1 {
			windowPrices := make([]float64, Window)
			for j := 0; j < Window; j++ {
				windowPrices[j] = sorted[i-Window+1+j].Price
			}
			mean := meanOf(windowPrices)
			std := stddevOf(windowPrices, mean)
			fv.Trend = &mean
			fv.Volatility = &std
		}

		out[i] = fv
	}
	return out
}

// FutureVectors derives one vector per day after the last observation.
// Rolling and cross-store features are carried forward from the most
// recent defined values; future regimes are assumed to persist, not
// simulated.
func FutureVectors(obs []*domain.PriceObservation, days int) []*domain.FeatureVector {
	if len(obs) == 0 || days <= 0 {
		return nil
	}

	historical := HistoricalVectors(obs)

	var lastTrend, lastVolatility *float64
	for i := len(historical) - 1; i >= 0; i-- {
		if historical[i].Complete() {
			lastTrend = historical[i].Trend
			lastVolatility = historical[i].Volatility
			break
		}
	}
	lastDiff := historical[len(historical)-1].StoreDiff

	lastDay := dayOf(historical[len(historical)-1].TimestampMs)

	out := make([]*domain.FeatureVector, days)
	for day := 1; day <= days; day++ {
		ts := lastDay.AddDate(0, 0, day).UnixMilli()
		fv := calendarVector(ts)
		if lastTrend != nil {
			trend := *lastTrend
			volatility := *lastVolatility
			fv.Trend = &trend
			fv.Volatility = &volatility
		}
		fv.StoreDiff = lastDiff
		out[day-1] = fv
	}
	return out
}

func calendarVector(tsMs int64) *domain.FeatureVector {
	t := time.UnixMilli(tsMs).UTC()
	return &domain.FeatureVector{
		TimestampMs:   tsMs,
		DayOfWeek:     int(t.Weekday()),
		Month:         int(t.Month()),
		IsHoliday:     IsHoliday(tsMs),
		DaysToHoliday: DaysToNextHoliday(tsMs),
	}
}

func crossStoreMean(latestByStore map[string]float64) float64 {
	sum := 0.0
	for _, p := range latestByStore {
		sum += p
	}
	return sum / float64(len(latestByStore))
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddevOf computes the sample standard deviation.
func stddevOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
