package opshttp

import (
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

// requireNonPublicNetwork rejects peers outside loopback, private and
// link-local ranges. The admin port exposes pprof and must never be reachable
// from the internet, even if a security group is misconfigured.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		var ip net.IP
		if err == nil {
			ip = net.ParseIP(host)
		}
		if ip == nil || !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			L.Warn(r.Context(), "ops request from public network rejected",
				"network.peer.address", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
