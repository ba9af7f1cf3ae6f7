/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key limiters used to protect public endpoints
// (e.g. the contact form) from floods. Two algorithms are available:
// leaky bucket (GCRA) and sliding window. Per-key state is bounded by the maximum number of keys,
// the least recently used keys are forgotten first.
package ratelimit
