package server

import (
	"fmt"
	"net/http"

	"mediasrv/internal/api"
)

func (s *Server) handleAdminGCBlobs(w http.ResponseWriter, r *http.Request) {
	var req api.BlobGCRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.BatchSize < 0 {
		s.writeError(w, r, badRequestCode(fmt.Errorf("batch_size must be >= 0"), ErrCodeInvalidArgument))
		return
	}
	if !req.DryRun && r.Header.Get("X-Confirm") != "true" {
		s.writeError(w, r, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	s.withLimiter(w, r, s.gcRuns, func() {
		result, err := s.media.GCBlobs(r.Context(), req.BatchSize, !req.DryRun)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
			CandidateCount: result.CandidateCount,
			DeletedCount:   result.DeletedCount,
			FailedCount:    result.FailedCount,
			SkippedCount:   result.SkippedCount,
			ReclaimedBytes: result.ReclaimedBytes,
			DryRun:         result.DryRun,
		})
	})
}
