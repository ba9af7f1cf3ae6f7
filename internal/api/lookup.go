/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
)

const maxLookupQueryLen = 256

var lookupResourceRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

type lookupResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Cached  bool            `json:"cached"`
}

// LookupCacheKey returns the response cache key for the lookup of q in resource, e.g. "weather:paris".
// The query is trimmed and lower-cased, so equivalent lookups share an entry.
func LookupCacheKey(resource, q string) string {
	return resource + ":" + strings.ToLower(strings.TrimSpace(q))
}

// Lookup proxies GET /lookup/{resource}?q=... to the upstream service.
// Successful upstream responses are memoized in the response cache.
func (h *Handler) Lookup(rw http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	if !lookupResourceRegexp.MatchString(resource) {
		h.respondError(rw, r, restapi.NewMalformedRequestError("Resource %q is not valid.", resource))
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.respondError(rw, r, restapi.NewMalformedRequestError(`Query parameter "q" is required.`))
		return
	}
	if len(q) > maxLookupQueryLen {
		h.respondError(rw, r, restapi.NewMalformedRequestError(
			`Query parameter "q" must not be longer than %d characters.`, maxLookupQueryLen))
		return
	}
	if h.cfg.Upstream.BaseURL == "" {
		h.respondError(rw, r, fmt.Errorf("lookup upstream: %w", ErrNotConfigured))
		return
	}

	key := LookupCacheKey(resource, q)
	data, cached, err := h.cache.GetOrLoadWithTTL(r.Context(), key, func(ctx context.Context, _ string) (json.RawMessage, error) {
		return h.fetchUpstream(ctx, resource, q)
	}, time.Duration(h.cfg.Upstream.CacheTTL))
	if err != nil {
		h.respondError(rw, r, err)
		return
	}

	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(log.String("cache_key", key), log.Bool("cache_hit", cached))
	}
	restapi.RespondCodeAndJSON(rw, http.StatusOK, lookupResponse{Success: true, Data: data, Cached: cached},
		middleware.GetLoggerFromContextOrDisabled(r.Context()))
}

func (h *Handler) fetchUpstream(ctx context.Context, resource, q string) (json.RawMessage, error) {
	upstreamURL := h.cfg.Upstream.BaseURL + "/" + url.PathEscape(resource) + "?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	for name, val := range h.cfg.Upstream.Headers {
		req.Header.Set(name, val)
	}
	req.Header.Set("Accept", restapi.ContentTypeAppJSON)

	var data json.RawMessage
	if err = restapi.DoRequestAndDecodeJSON(h.upstreamClient, req, &data, middleware.GetLoggerFromContextOrDisabled(ctx)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return data, nil
}
