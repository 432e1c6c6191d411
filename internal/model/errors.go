package model

import "errors"

// Failure classes of a scheduler pass. They are logged per subscription and never abort a tick.
var (
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrPersistenceFailed = errors.New("persistence failed")
)
