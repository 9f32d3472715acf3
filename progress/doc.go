// Package progress keeps aggregated per-run step counters. The tracker
// lives in the execution context so every component that receives the
// context can update the counters without a global registry.
package progress
