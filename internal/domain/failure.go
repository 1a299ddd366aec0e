package domain

// FailureReason classifies why a source call produced no observation.
type FailureReason string

const (
	FailureTimeout   FailureReason = "timeout"   // per-source deadline exceeded
	FailureCancelled FailureReason = "cancelled" // aggregation cancelled, typically shutdown
	FailureNetwork   FailureReason = "network"   // transport error
	FailureStatus    FailureReason = "status"    // non-success HTTP status
	FailureParse     FailureReason = "parse"     // unparseable payload
	FailurePanic     FailureReason = "panic"     // unhandled fault in the call path
)

// SourceFailure records one failed source call. Failures are data, not
// control flow: they travel alongside successful observations in the
// aggregation result.
type SourceFailure struct {
	Source string        // store display name of the failed source
	Reason FailureReason // failure classification
	Detail string        // human-readable detail, may be empty
}

// AggregationResult is the outcome of one aggregation pass for a product.
// The number of sources queried always equals the number of stores that
// produced observations plus len(Failures); partial results are expected.
type AggregationResult struct {
	ProductID    string
	Observations []*PriceObservation // committed this pass, one per successful source record
	Failures     []SourceFailure     // one per failed source
	Dropped      int                 // raw records discarded by normalization
}
