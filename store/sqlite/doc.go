// Package sqlite implements store.Store on SQLite via mattn/go-sqlite3.
//
// Claims are a guarded UPDATE checked with RowsAffected. SQLite takes a
// database-wide write lock per statement, so two claimers can never both
// see status = 'open'. The store is meant for single-node deployments
// and local development.
package sqlite
