// Package embed requests vector embeddings for chunk text from an
// external embedding service. The service itself — its model internals
// and ranking behavior — is out of scope; this package only implements
// the narrow request/response contract and the ambient concerns around
// it (batching, retry, LRU caching of repeated text).
package embed
