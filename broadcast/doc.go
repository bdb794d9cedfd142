// Package broadcast fans job events out to every subscribed helper.
//
// A [Bus] delivers each published [Event] to all subscriptions bound to the
// event's topic at publish time. There is no competition between
// subscribers: every helper gets its own copy. Delivery is at-least-once;
// a subscription that does not [Delivery.Ack] within the ack timeout sees
// the event again, so consumers must tolerate duplicates. A subscription
// only receives events published after it was created.
//
// Two implementations are provided:
//
//   - [Broker]: in-process, per-subscriber unbounded queues
//   - redisbus.Bus: Redis Streams with one consumer group per subscriber
//
// # Topics
//
//	jobs       job.created announcements for helpers
//	activity   claim results (job.assigned, job.claim_lost)
//	firehose   everything
package broadcast
