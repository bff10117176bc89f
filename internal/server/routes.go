package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Media collection.
	mux.HandleFunc("POST /v1/media", s.handleUploadMedia)
	mux.HandleFunc("GET /v1/media", s.handleListMedia)

	// Single media.
	mux.HandleFunc("GET /v1/media/{id}", s.handleGetMedia)
	mux.HandleFunc("DELETE /v1/media/{id}", s.handleDeleteMedia)

	// Media bytes. GET patterns also match HEAD.
	mux.HandleFunc("GET /v1/media/{id}/content", s.handleMediaContent)
	mux.HandleFunc("GET /media/{id}", s.handleMediaContent)

	// Admin.
	mux.HandleFunc("POST /v1/admin/gc-blobs", s.handleAdminGCBlobs)

	return mux
}
