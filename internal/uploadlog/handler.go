package uploadlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/storypress/imagestore/internal/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DegradedLister is the read side of the audit log the HTTP layer needs.
// Kept as an interface so handler tests can stub the repository.
type DegradedLister interface {
	ListDegraded(ctx context.Context, limit int) ([]Entry, error)
}

// Handler holds HTTP handlers for the upload audit log.
type Handler struct {
	repo DegradedLister
}

// NewHandler creates a new audit-log Handler.
func NewHandler(repo DegradedLister) *Handler {
	return &Handler{repo: repo}
}

// ListDegraded godoc
//
//	@Summary		List degraded upload results
//	@Description	Returns recent uploads that fell through to the original-URL tier. Their links are not durable; re-run these uploads once storage recovers.
//	@Tags			uploads
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"maximum rows to return (default 50, max 500)"
//	@Success		200		{object}	response.Envelope{data=[]Entry}
//	@Failure		400		{object}	response.Envelope
//	@Router			/uploads/degraded [get]
func (h *Handler) ListDegraded(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries, err := h.repo.ListDegraded(r.Context(), limit)
	if err != nil {
		response.InternalError(w)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	response.OK(w, entries)
}
