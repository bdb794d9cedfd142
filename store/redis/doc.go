// Package redis implements store.Store on Redis.
//
// Jobs are Hashes keyed by ID. Open jobs are also indexed in a Sorted Set
// scored by creation time, so listing is a single ZRANGE. Claims run as a
// Lua script that checks and flips the status in one step, which is what
// makes the exactly-one-winner guarantee hold across many API nodes.
//
// The caller owns the client:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
