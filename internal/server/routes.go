package server

import "net/http"

// registerRoutes sets up all endpoints.
func (s *Server) registerRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("POST /api/projects/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/projects/{id}/run", s.handleRun)
	mux.HandleFunc("POST /api/projects/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/projects/{id}/resume", s.handleResume)

	mux.HandleFunc("GET /api/delegates", s.handleDelegates)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return s.logMiddleware(s.corsMiddleware(mux))
}
