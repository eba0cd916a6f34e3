package vectordb

import "errors"

var (
	// ErrNotConnected indicates an operation on a provider before Connect
	// or after Disconnect.
	ErrNotConnected = errors.New("vector store is not connected")

	// ErrCollectionNotFound indicates an operation on a collection that
	// does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates a vector whose dimension does not
	// match the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidCollectionName indicates a collection name the backend
	// cannot use.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)
