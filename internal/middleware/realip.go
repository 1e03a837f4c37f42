package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP извлекает IP клиента для ключей rate limit.
// Доверяем X-Real-Ip / X-Forwarded-For, предполагая reverse proxy перед сервером.
func ClientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return strings.TrimSpace(x)
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		// первый адрес в цепочке
		if idx := strings.Index(x, ","); idx > 0 {
			return strings.TrimSpace(x[:idx])
		}
		return strings.TrimSpace(x)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
