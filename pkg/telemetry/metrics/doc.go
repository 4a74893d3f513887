// Package metrics exposes a Prometheus Collector scoped to the
// gateway's own request/credential/retry concerns: requests by
// dialect and outcome, upstream latency, credential cooldowns, and
// retry counts. It is adapted from the teacher's broader
// provider/policy/cost/cache metric families, which have no home in
// this gateway's domain.
package metrics
