// Package service hosts the matching engine: the single owner of the
// order book and the order registry.
//
// It provides placing and querying of orders behind one mutex,
// decoupled from network transports like gRPC and from the outbox
// that carries trades to downstream consumers.
package service
