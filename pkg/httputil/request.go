package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/contextkeys"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("invalid JSON: empty body")
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ClientIP returns the originating client address. Forwarding headers count
// only when TrustedProxyMiddleware accepted them; otherwise the connection
// address without its port is used.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(contextkeys.ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TrustedProxies is a set of proxy networks allowed to report client addresses
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses addresses and CIDR ranges. A bare address is a
// single-host range.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

// Contains reports whether ip belongs to a trusted network
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientFromHeaders walks X-Forwarded-For from the nearest hop and returns
// the first address that is not a trusted proxy, falling back to X-Real-IP.
func (t TrustedProxies) clientFromHeaders(r *http.Request) string {
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var last string
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			last = hop
			if !t.Contains(hop) {
				return hop
			}
		}
		if last != "" {
			return last
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return ""
}

// TrustedProxyMiddleware records the client address from X-Forwarded-For or
// X-Real-IP when the connection comes from a trusted proxy. Headers from any
// other peer are ignored so clients cannot pick their own rate limit key.
func TrustedProxyMiddleware(proxies TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(proxies) > 0 && proxies.Contains(remoteHost(r)) {
				if ip := proxies.clientFromHeaders(r); ip != "" {
					r = r.WithContext(context.WithValue(r.Context(), contextkeys.ClientIPKey, ip))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
