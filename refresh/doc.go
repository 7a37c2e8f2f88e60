// Package refresh recomputes the frequency counters of the word index.
//
// The search ranks partial words by how many places use them. Imports do
// not maintain these counters; a Refresher walks all places in batches,
// counts name and address token usage concurrently and writes the totals
// back with retry logic and exponential backoff. Progress is reported to a
// writer while the walk runs.
package refresh
