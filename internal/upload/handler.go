package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/storypress/imagestore/internal/response"
)

// Service is the slice of the Uploader the HTTP layer needs. Kept as an
// interface so handler tests can stub the pipeline.
type Service interface {
	SmartUpload(ctx context.Context, sourceURL, folder string) (Result, error)
	SignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	Diagnose(ctx context.Context) DiagnosticReport
}

// Handler holds HTTP handlers for the upload pipeline endpoints.
type Handler struct {
	svc Service
}

// NewHandler creates a new upload Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// uploadRequest is the POST /uploads payload.
type uploadRequest struct {
	SourceURL string `json:"sourceUrl"`
	Folder    string `json:"folder"`
}

// Upload godoc
//
//	@Summary		Persist a remote image durably
//	@Description	Fetches the image at sourceUrl and stores it in the deepest available tier. Never fails for recoverable storage conditions; inspect the returned tier.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		uploadRequest	true	"upload request"
//	@Success		200		{object}	response.Envelope{data=Result}
//	@Failure		400		{object}	response.Envelope
//	@Router			/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if req.SourceURL == "" {
		response.BadRequest(w, "sourceUrl is required")
		return
	}
	if req.Folder == "" {
		response.BadRequest(w, "folder is required")
		return
	}

	res, err := h.svc.SmartUpload(r.Context(), req.SourceURL, req.Folder)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, res)
}

// SignedURL godoc
//
//	@Summary		Mint a signed URL for a stored object
//	@Description	Returns a time-limited signed URL for an object previously stored in the remote tier.
//	@Tags			uploads
//	@Produce		json
//	@Security		BearerAuth
//	@Param			key				query		string	true	"object key, e.g. illustrations/<uuid>.png"
//	@Param			expirySeconds	query		int		false	"expiry in seconds (default: server-configured)"
//	@Success		200				{object}	response.Envelope
//	@Failure		400				{object}	response.Envelope
//	@Failure		503				{object}	response.Envelope
//	@Router			/uploads/signed-url [get]
func (h *Handler) SignedURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		response.BadRequest(w, "key is required")
		return
	}

	var expiry time.Duration
	if raw := r.URL.Query().Get("expirySeconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			response.BadRequest(w, "expirySeconds must be a positive integer")
			return
		}
		expiry = time.Duration(secs) * time.Second
	}

	url, err := h.svc.SignedURL(r.Context(), key, expiry)
	if err != nil {
		if errors.Is(err, ErrSignedURLUnavailable) {
			response.Error(w, http.StatusServiceUnavailable, "storage endpoints unreachable")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"url": url})
}

// Diagnostics godoc
//
//	@Summary		Storage tier connectivity check
//	@Description	Exercises the remote and local tiers independently with an embedded test payload.
//	@Tags			diagnostics
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=DiagnosticReport}
//	@Router			/diagnostics/storage [get]
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.svc.Diagnose(r.Context()))
}
