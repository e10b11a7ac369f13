// Package harvest defines the core types, ports and error taxonomy shared by
// the incremental harvesting pipeline: source adapters, the fetcher, the
// extractor, checkpoint persistence, notification and the orchestrator.
package harvest
