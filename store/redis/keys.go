package redis

// Redis key naming conventions for cadence data.
// All keys are prefixed with "cadence:" to avoid collisions.

const keyPrefix = "cadence:"

// jobKey returns the Hash key for a job: cadence:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// dueKey is the Sorted Set indexing pending jobs by fire instant
// (score = fire_at in unix milliseconds).
const dueKey = keyPrefix + "due"

// seqKey is the counter issuing per-job insertion sequence numbers,
// the tie-break for jobs sharing a fire instant.
const seqKey = keyPrefix + "seq"
