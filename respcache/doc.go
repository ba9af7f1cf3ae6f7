/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package respcache provides an in-memory cache for responses of expensive downstream calls.
// Entries have a time-to-live measured from the moment they were stored (or last read, if age reset
// on access is enabled), the cache is bounded by the number of entries and evicts the least recently used
// entry when full. Expired entries are removed lazily on read or by the periodic cleanup.
package respcache
