package main

import (
	"net/http"
)

// setupRouter serves the edge's own routes on exact GET/HEAD path matches and
// hands everything else to the edge handler untouched. Empty paths are
// ignored.
func setupRouter(edgeHandler http.Handler, routes map[string]http.Handler) http.Handler {
	local := make(map[string]http.Handler, len(routes))
	for path, h := range routes {
		if path != "" {
			local[path] = h
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if h, ok := local[r.URL.Path]; ok {
				h.ServeHTTP(w, r)
				return
			}
		}

		edgeHandler.ServeHTTP(w, r)
	})
}
