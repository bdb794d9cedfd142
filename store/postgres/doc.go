// Package postgres implements store.Store on PostgreSQL using pgx/v5 and
// raw SQL. Claims are a single conditional UPDATE guarded by
// status = 'open'; row locking inside PostgreSQL serialises racing
// claimers. Schema changes ship as embedded SQL migrations.
package postgres
