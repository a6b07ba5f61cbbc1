// Package outbox buffers executed trades between the matching engine
// and the broadcaster. Records are written inside the engine's
// critical section and removed once a publisher acknowledges them,
// giving at-least-once delivery downstream.
//
// The outbox never feeds back into the book: engine state is rebuilt
// from nothing on restart.
package outbox
