// Package storage persists the nudge collection and the fire log.
//
// Two drivers share one interface: "file" keeps the collection in a single
// JSON document (written atomically) with an append-only JSON Lines fire log
// next to it, and "sqlite" keeps both in one database file. The collection is
// small and owned entirely in memory by its manager, so SaveNudges always
// rewrites the full set.
package storage
