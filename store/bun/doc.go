// Package bunstore implements store.Store with the Bun ORM on the
// PostgreSQL dialect. The claim is the same guarded UPDATE as the pgx
// store, expressed through NewUpdate with a status = 'open' condition.
// The caller owns the *bun.DB.
package bunstore
