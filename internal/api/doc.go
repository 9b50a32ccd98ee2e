// Package api provides the snapshot client for the station hub REST API.
//
// Snapshots are one-shot full-state responses, never a stream; the polling
// fallback controller decides how often they are fetched.
package api
