package server

import (
	"net/http"

	"mediasrv/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.StoreInfo(r.Context())
	if err != nil {
		s.writeError(w, r, storeFailure(err))
		return
	}

	views := s.views.Stats()
	resp := api.InfoResponse{
		DBPath:         s.opts.DBPath,
		StorageBackend: s.blobs.Backend(),
		SchemaVersion:  info.SchemaVersion,
		MediaCount:     info.MediaCount,
		BlobCount:      info.BlobCount,
		TotalBytes:     info.TotalBytes,
		TotalViews:     info.TotalViews,
		StrictRanges:   s.opts.StrictRanges,
		PendingViews:   views.Pending,
		RecordedViews:  views.Recorded,
		FailedViews:    views.Failed,
		DroppedViews:   views.Dropped,
	}

	s.writeJSON(w, http.StatusOK, resp)
}
