// Package calllog keeps the current known outcome of every endpoint a client
// has called. Entries are keyed by (url, method): a repeated call to the same
// endpoint and method overwrites the stored entry instead of appending a new
// one, so the store reads as a per-endpoint status board rather than a call
// history.
//
// Storage is pluggable through Store. MemoryStore is the reference backend;
// the mongostore and pgstore sub-packages persist entries in MongoDB and
// PostgreSQL.
package calllog
