package api

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
)

// errorRecoveryMiddleware turns handler panics into a 500 internal_error
// response. The stack trace is logged server-side only.
func (a *API) errorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				stack := make([]byte, 4096)
				n := runtime.Stack(stack, false)

				a.logger.Errorw("PANIC RECOVERED",
					"error", fmt.Sprintf("%v", err),
					"request_id", GetRequestIDOrDefault(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack_trace", string(stack[:n]),
				)
				writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error", fmt.Errorf("panic: %v", err), nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// getRealIP returns the client IP. Forwarding headers are honoured only when
// trustProxy is set and the direct peer is inside a trusted network.
func getRealIP(r *http.Request, trustProxy bool, trustedNetworks []string) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	if !trustProxy || !isTrustedProxy(directIP, trustedNetworks) {
		return directIP
	}

	// X-Forwarded-For can contain multiple IPs, the first one is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	return directIP
}

// isTrustedProxy checks if an IP address is in the list of trusted proxy networks
func isTrustedProxy(ip string, trustedNetworks []string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, network := range trustedNetworks {
		_, cidr, err := net.ParseCIDR(network)
		if err != nil {
			// Plain IPs are accepted as single-host networks
			if trusted := net.ParseIP(network); trusted != nil && trusted.Equal(parsedIP) {
				return true
			}
			continue
		}
		if cidr.Contains(parsedIP) {
			return true
		}
	}
	return false
}
