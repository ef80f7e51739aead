// Package store defines interfaces for persistence dependencies (battle
// stores, archive blob stores, crawl run records). Implementations live in
// internal/storage; this package must not import database drivers or
// concrete clients.
package store
