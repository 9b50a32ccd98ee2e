// Package poller implements snapshot polling and the fallback controller.
//
// The snapshot poll loop:
//   - Fetches the authoritative batch list on a fixed schedule
//   - Fetches subscribed batches concurrently with bounded parallelism
//   - Merges every response through the store's snapshot policy
//
// The fallback controller watches the push channel: after a disconnect
// outlasts the grace period, it raises the poll frequency as a degraded
// substitute for push delivery, and drops back (with one forced refresh)
// when the channel recovers.
package poller
