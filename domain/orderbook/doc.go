// Package orderbook holds the matching domain: orders, FIFO price
// levels, the two price-sorted book sides and the price-time matching
// pass that runs one incoming order against them.
//
// Nothing in this package is safe for concurrent use. The single
// writer (service.MatchingEngine) serializes every call.
package orderbook
