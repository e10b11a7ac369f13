// Package orchestrator drives one harvesting run across every configured
// source.
//
// Each source moves through LISTING and FETCHING and ends in SOURCE_DONE or
// SOURCE_FAILED. Once all sources settle the run aggregates their outcomes
// in configuration order, advances checkpoints for SOURCE_DONE sources only,
// and emits one summary event. External failures degrade to skips and
// error records. Only broken wiring makes Run return an error.
package orchestrator
