// Package indexing rebuilds a project's vector collection from its stored
// chunks.
//
// The indexer pages through durable chunk storage, embeds each page of text
// in an order-preserving batch call, and upserts the vectors keyed by chunk
// ID. It supports progress tracking and retry logic with exponential backoff
// for the embedding calls.
package indexing
