/*
Package observability provides the Prometheus instruments the store emits.

Deferred work never surfaces errors to callers, so counters are the only
place cache reconciliations and background write failures become visible.
Register the instruments with your registry via [Metrics.MustRegister].
*/
package observability
