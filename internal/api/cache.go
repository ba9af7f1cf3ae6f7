/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

type deleteCacheEntryResponseData struct {
	Deleted bool `json:"deleted"`
}

// CacheStats responds with the number of cache entries and their calculated size.
func (h *Handler) CacheStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondSuccess(rw, http.StatusOK, h.cache.Stats(), middleware.GetLoggerFromContextOrDisabled(r.Context()))
}

// ClearCache removes all cache entries.
func (h *Handler) ClearCache(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContextOrDisabled(r.Context())
	h.cache.Clear()
	logger.Info("response cache cleared")
	restapi.RespondSuccess(rw, http.StatusOK, h.cache.Stats(), logger)
}

// DeleteCacheEntry removes a single entry, the key is URL-encoded in the path (e.g. "weather%3Aparis").
func (h *Handler) DeleteCacheEntry(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContextOrDisabled(r.Context())
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		h.respondError(rw, r, restapi.NewMalformedRequestError("Cache key is not valid."))
		return
	}
	deleted := h.cache.Delete(key)
	logger.Info("response cache entry deleted", log.String("cache_key", key), log.Bool("deleted", deleted))
	restapi.RespondSuccess(rw, http.StatusOK, deleteCacheEntryResponseData{Deleted: deleted}, logger)
}
