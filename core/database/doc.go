// Package database manages the GORM connection used by the catalog, rule,
// deletion and sync stores. MySQL is the production driver; the sqlite driver
// exists for tests and small single-host deployments.
package database
