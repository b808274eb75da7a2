package luckydraw

import (
	"crypto/rand"
	"fmt"
	"time"
)

// ValidateDrawCount validates the number of draws in a batch
func ValidateDrawCount(count int) error {
	if count <= 0 || count > MaxDrawBatchSize {
		return ErrInvalidDrawCount
	}
	return nil
}

// newToken generates a unique hex token using crypto/rand
func newToken() string {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		// Fallback to timestamp-based value if crypto/rand fails
		return fmt.Sprintf("tok_%d", time.Now().UnixNano())
	}

	const hexChars = "0123456789abcdef"
	result := make([]byte, 32)
	for i, b := range bytes {
		result[i*2] = hexChars[b>>4]
		result[i*2+1] = hexChars[b&0x0f]
	}

	return string(result)
}

// newBatchID generates a unique identifier for a draw batch
func newBatchID() string {
	return "batch_" + newToken()[:16]
}

// newTransactionID generates a unique identifier for a ledger transaction
func newTransactionID() string {
	return "tx_" + newToken()[:16]
}
