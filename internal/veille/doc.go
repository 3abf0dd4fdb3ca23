// Package veille runs the publication watch: a registry of source scrapers,
// an orchestrator that fans out to them concurrently, and the shared
// normalization, dedup and recency steps applied to what they return.
package veille
