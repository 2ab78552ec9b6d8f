// Package crawler defines the core domain types and pure logic of the
// crawling engine: URL canonicalization, admission filtering, and the
// Frontier/Visited/InFlight store. Nothing in this package touches a
// browser, a filesystem, or a network socket — that belongs to the
// collaborator packages (browser, sink, checkpoint, ratecontroller, worker,
// pool) that depend on it.
package crawler
