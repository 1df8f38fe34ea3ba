package transfer

import "time"

// Ledger mutation attempt results
const (
	MutationApplied  = "applied"
	MutationRejected = "rejected"
	MutationError    = "error"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultFraudCheckTimeout  = 5 * time.Second
	DefaultReconcileGrace     = 10 * time.Second
	DefaultReconcileBatchSize = 100
	DefaultListLimit          = 50
	MaxListLimit              = 200
)
