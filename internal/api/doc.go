// Package api serves the ruledit HTTP API.
//
// Uploaded rule text is parsed into an editing session held in memory. Rules
// are edited through the session endpoints, and the canonical rendering can be
// downloaded or saved as a numbered version in the version store. Connected
// watchers receive the new rendering after every change.
//
// Sessions live in a registry keyed by a random id. Each session has its own
// lock, so handlers for different sessions run in parallel while edits to one
// session are serialised. Idle sessions expire after the configured TTL.
package api
