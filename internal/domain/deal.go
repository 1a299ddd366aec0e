package domain

// Deal is one ranked discount: a (product, store) pair whose current price
// sits below its trailing average.
type Deal struct {
	ProductID    string
	ProductName  string
	StoreID      string
	StoreName    string
	CurrentPrice float64
	AveragePrice float64 // trailing-window mean for the pair
	DiscountPct  float64 // (avg - current) / avg * 100
	Savings      float64 // avg - current, absolute
	IsSale       bool
	SaleEndMs    *int64
}

// StorePrice is the latest observation for one store, used by the
// current-prices and comparison views.
type StorePrice struct {
	StoreID      string
	StoreName    string
	Price        float64
	Currency     string
	IsSale       bool
	SaleEndMs    *int64
	ObservedAtMs int64
}

// ProductComparison compares current prices for one product across stores.
type ProductComparison struct {
	ProductID   string
	ProductName string
	Prices      []StorePrice       // latest per store
	Lowest      StorePrice         // cheapest current price
	DiffFromLow map[string]float64 // store name -> price minus lowest
}

// PriceTrend summarizes price movement for one product over a window.
type PriceTrend struct {
	ProductID     string
	MinPrice      float64
	MaxPrice      float64
	AvgPrice      float64
	SaleFrequency float64 // fraction of observations flagged as sale
	BestTimeMs    int64   // Unix ms of the cheapest observation in the window
	Observations  int     // observations considered
}
