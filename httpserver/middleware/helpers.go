/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// RoutePatternGetterFunc is a function for getting route pattern from the request. Used in multiple middlewares.
// For chi router it's usually chi.RouteContext(r.Context()).RoutePattern().
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriter is a proxy around http.ResponseWriter that tracks status code and number of written bytes.
type WrapResponseWriter = chimw.WrapResponseWriter

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter (if it is not already wrapped), returning a proxy that allows you to
// hook into various parts of the response process.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// GetOriginAddr returns the client address claimed by X-Forwarded-For (first entry) or X-Real-IP headers.
// Any client can send these headers, so the value is informational only (e.g. for logging).
func GetOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		remoteAddr := forwardFor
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			remoteAddr = forwardFor[:first]
		}
		return strings.TrimSpace(remoteAddr)
	}
	if realIP := r.Header.Get(headerRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return ""
}

// GetClientIP returns the IP part of RemoteAddr. Proxy headers are not taken into account,
// use TrustedProxies.ClientIP when the server runs behind a reverse proxy.
func GetClientIP(r *http.Request) string {
	return TrustedProxies(nil).ClientIP(r)
}

// TrustedProxies is a list of networks whose X-Forwarded-For and X-Real-IP headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDRs ("10.0.0.0/8") and single addresses ("192.0.2.10").
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var res TrustedProxies
	for _, val := range values {
		val = strings.TrimSpace(val)
		if strings.Contains(val, "/") {
			prefix, err := netip.ParsePrefix(val)
			if err != nil {
				return nil, err
			}
			res = append(res, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(val)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		res = append(res, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

func (tp TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range tp {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client that sent the request.
// Headers are consulted only if the direct peer is a trusted proxy. X-Forwarded-For is walked
// from the right and the first entry that is not a trusted proxy wins, so values prepended by the client are ignored.
func (tp TrustedProxies) ClientIP(r *http.Request) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}
	if len(tp) == 0 || !tp.contains(remoteIP) {
		return remoteIP
	}

	var hops []string
	for _, val := range r.Header.Values(headerForwardedFor) {
		for _, hop := range strings.Split(val, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !tp.contains(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) != 0 {
		return hops[0]
	}
	if realIP := strings.TrimSpace(r.Header.Get(headerRealIP)); realIP != "" {
		return realIP
	}
	return remoteIP
}
