package domain

// Forecast is one day-ahead price prediction.
// Confidence is a rough in-sample fit heuristic clipped to [0,1]; it is not
// a calibrated probability or predictive interval.
type Forecast struct {
	Day            int     // 1..daysAhead
	DateMs         int64   // Unix ms midnight of the predicted day
	PredictedPrice float64 // model output
	Confidence     float64 // fit-quality heuristic in [0,1]
}
