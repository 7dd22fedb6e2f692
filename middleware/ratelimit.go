package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"appsync/pkg/apperr"
	"appsync/pkg/response"
)

// Limiter decides whether a client key may make another request.
type Limiter interface {
	Allow(key string) bool
	Limit() int
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
			if !l.Allow(ClientIP(r)) {
				kind := apperr.KindRateLimited
				response.Error(w, kind.HTTPStatus(),
					fmt.Sprintf("Too many requests. Limit is %d requests per window", l.Limit()),
					nil, kind.Code())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
