// Package ingestion imports places into the search index.
//
// The Pipeline type manages the import workflow, including:
//   - Deriving full, partial, housenumber, country and postcode word rows
//   - Creating missing rows in the word index
//   - Storing places with their name and address token vectors
//
// Word derivation runs concurrently on a worker pool. Each batch of places
// is written in a single transaction. Word frequencies are not maintained
// here; run the refresh package after large imports.
package ingestion
