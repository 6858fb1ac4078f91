// Package crawler implements the crawl orchestrator: single-entity detail
// fetches, share-link resolution and bounded cursor pagination over the user
// listing endpoint. Transport, persistence and archival are injected through
// the interfaces in this package.
package crawler
