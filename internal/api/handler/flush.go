package handler

import (
	"net/http"

	"github.com/jobdeck/swipequeue/internal/api/response"
)

// NewFlushHandler returns the handler for POST /api/v1/flush. An empty batch
// is a successful no-op. Per-item failures do not fail the request: the
// result reports retained and dropped counts, and the retry machinery owns
// the rest.
func NewFlushHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Flush(r.Context())
		if res == nil {
			writeDomainError(w, err)
			return
		}
		response.JSON(w, res)
	}
}
