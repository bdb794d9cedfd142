package redis

// All keys share the "carenest:" prefix.
const keyPrefix = "carenest:"

// ── Job keys ──

// jobKey returns the Hash key for a job: carenest:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// openJobsKey is the Sorted Set of open job IDs scored by created_at (ms).
const openJobsKey = keyPrefix + "jobs:open"

// assignedJobsKey is the Set of assigned job IDs.
const assignedJobsKey = keyPrefix + "jobs:assigned"

// jobIDsKey is the Set tracking every job ID.
const jobIDsKey = keyPrefix + "job_ids"

// ── Participant keys ──

// patientKey returns the Hash key for a patient: carenest:patient:{phone}
func patientKey(phone string) string { return keyPrefix + "patient:" + phone }

// patientsKey is the Sorted Set of patient phones scored by created_at (ms).
const patientsKey = keyPrefix + "patients"

// helperKey returns the Hash key for a helper: carenest:helper:{phone}
func helperKey(phone string) string { return keyPrefix + "helper:" + phone }

// helpersKey is the Sorted Set of helper phones scored by created_at (ms).
const helpersKey = keyPrefix + "helpers"
