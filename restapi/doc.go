/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi contains helpers for JSON APIs: decoding of request bodies,
// success responses, and the standardized error response that redacts internals in production.
package restapi
