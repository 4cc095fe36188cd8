// Package catalog owns the authoritative table of known media entries.
//
// The store exposes upsert-by-identity (path) with a fixed allow-list of
// mutable columns, query-by-predicate listing, and the additive watch-history
// merge. Everything above the catalog (rules, deletion, sync) goes through
// this package rather than raw GORM.
package catalog
