// Package model defines shared data types for the station sync core.
//
// Conventions:
//   - Progress: float64 in [0, 1]
//   - Durations: float64 seconds as reported by the station backend
//   - IDs: string batch ids, opaque string execution ids
package model
