package server

import (
	"net/http"

	"shelf/internal/metrics"
)

// route is one entry of the routing table. Patterns use the net/http
// ServeMux syntax, so path parameters are read with r.PathValue.
type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
	// auth marks routes that require the shared secret.
	auth bool
}

func (s *Server) routes() []route {
	routes := []route{
		{method: http.MethodGet, pattern: "/{$}", handler: s.handleIndex},
		{method: http.MethodGet, pattern: "/healthz", handler: s.handleHealth},

		{method: http.MethodGet, pattern: "/api/list", handler: s.handleList, auth: true},
		{method: http.MethodPut, pattern: "/api/upload/{key...}", handler: s.handleUpload, auth: true},
		{method: http.MethodPost, pattern: "/api/delete", handler: s.handleDelete, auth: true},
		{method: http.MethodPost, pattern: "/api/create-folder", handler: s.handleCreateFolder, auth: true},
		{method: http.MethodPost, pattern: "/api/move", handler: s.handleMove, auth: true},
		{method: http.MethodPost, pattern: "/api/rename", handler: s.handleMove, auth: true},

		// Unknown API paths still require the secret before reporting 404,
		// and must not fall through to object downloads.
		{method: http.MethodGet, pattern: "/api/{rest...}", handler: s.handleAPINotFound, auth: true},
		{method: http.MethodPost, pattern: "/api/{rest...}", handler: s.handleAPINotFound, auth: true},
		{method: http.MethodPut, pattern: "/api/{rest...}", handler: s.handleAPINotFound, auth: true},
		{method: http.MethodDelete, pattern: "/api/{rest...}", handler: s.handleAPINotFound, auth: true},

		{method: http.MethodGet, pattern: "/{key...}", handler: s.handleDownload},
	}

	if s.cfg.Metrics {
		routes = append(routes, route{
			method:  http.MethodGet,
			pattern: "/metrics",
			handler: metrics.Handler().ServeHTTP,
		})
	}
	return routes
}

// Handler returns the complete http.Handler for the file manager.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if rt.auth {
			h = s.RequireAuthentication(h)
		}
		mux.Handle(rt.method+" "+rt.pattern, h)
	}

	handler := InstrumentRoutes(mux)
	handler = LogRequest(handler)
	handler = Recoverer(handler)
	return handler
}
