// Package etcd implements store.Store on etcd v3.
//
// Every record is a msgpack value under /carenest/. A claim reads the job,
// then commits with a transaction guarded on the key's ModRevision, so a
// concurrent writer makes the transaction fail and the loser re-reads the
// winner's record.
package etcd
