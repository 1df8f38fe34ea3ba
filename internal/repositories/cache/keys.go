package cache

import "fmt"

type EntityType string

const (
	EntityFraud EntityType = "fraud"
)

type KeyType string

const (
	// KeyTransaction holds a stored fraud outcome.
	KeyTransaction KeyType = "transaction"
	// KeyTransfer marks a transfer id the detector has already processed.
	KeyTransfer KeyType = "transfer"
)

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entity, keyType, value)
}

// FraudOutcomeKey is where the verdict for transferID is cached.
func FraudOutcomeKey(transferID string) string {
	return GenerateKey(EntityFraud, KeyTransaction, transferID)
}

// FraudDedupeKey is the detector's processed marker for transferID.
func FraudDedupeKey(transferID string) string {
	return GenerateKey(EntityFraud, KeyTransfer, transferID)
}
