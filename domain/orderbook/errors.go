package orderbook

import "errors"

// ErrInvalidOrder is returned for orders rejected before any state change.
var ErrInvalidOrder = errors.New("invalid order")
