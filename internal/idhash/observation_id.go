package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeObservationID computes a deterministic observation id using SHA256.
// Formula: SHA256(product_id|store_id|observed_at_ms|price)
// Returns hex-encoded hash (64 characters).
func ComputeObservationID(productID, storeID string, observedAtMs int64, price float64) string {
	data := fmt.Sprintf("%s|%s|%d|%.4f", productID, storeID, observedAtMs, price)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
