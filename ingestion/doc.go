// Package ingestion turns a corpus of provision records into a published
// graph version.
//
// The Pipeline type runs one ingestion pass:
//   - Build the graph snapshot from the records
//   - Embed chunked provision text on a worker pool, reusing the vectors of
//     the previous version for unchanged provisions
//   - Compute baseline importance
//   - Persist the snapshot and publish it to the registry
//
// Nothing is published unless every step succeeds, so readers keep serving
// the previous version when a pass fails.
package ingestion
