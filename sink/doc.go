// Package sink is the helper side of job dispatch.
//
// A [Listener] binds to the bus as one subscriber, decodes each job.created
// delivery, asks its [Policy] whether this helper wants the job and, if so,
// claims it. The delivery is acknowledged only after the claim settles, so
// a listener that dies mid-claim gets the event again and retries; the
// arbiter answers the retry with the same outcome.
//
// Listeners make no assumption about how many other helpers react to the
// same event.
package sink
