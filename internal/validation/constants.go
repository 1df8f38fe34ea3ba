package validation

const (
	// AmountScale is the number of decimal places a transfer amount may carry.
	AmountScale = 2

	// String lengths
	MaxAccountRefLength     = 64
	MaxIdempotencyKeyLength = 128
	MaxDescriptionLength    = 500
)
