// Package participant models the people on either side of a job: patients
// who request care and helpers who claim it.
//
// Both are keyed by phone number and registration is an upsert: registering
// the same phone twice updates the existing record and keeps its ID. Helper
// registration issues a one-time password that must be verified before the
// helper's phone is considered confirmed.
//
// The [Registry] doubles as the requester directory consulted by the
// lifecycle manager before a job is created.
package participant
