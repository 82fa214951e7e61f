package api

import (
	"errors"
	"net/http"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/httputil"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

// writeError maps service errors onto status codes and stable error codes.
// Anything unrecognised is a 500 whose cause only reaches the logs.
func writeError(w http.ResponseWriter, err error) {
	var (
		unsupported *domain.UnsupportedAudienceError
		invalid     *domain.ValidationError
	)
	switch {
	case errors.As(err, &unsupported):
		httputil.BadRequest(w, unsupported.Error())
	case errors.As(err, &invalid):
		if invalid.Detail != "" {
			httputil.ErrorWithDetails(w, http.StatusBadRequest, invalid.Code, invalid.Detail)
			return
		}
		httputil.BadRequest(w, invalid.Code)
	case errors.Is(err, domain.ErrValidation):
		httputil.BadRequest(w, "validation_failed")
	case errors.Is(err, campaign.ErrMessageRequired):
		httputil.BadRequest(w, "message_required")
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign_not_found")
	case errors.Is(err, campaign.ErrRunNotFound):
		httputil.NotFound(w, "run_not_found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, "invalid_transition")
	case errors.Is(err, campaign.ErrArchived):
		httputil.Conflict(w, "campaign_archived")
	default:
		httputil.InternalError(w, err)
	}
}
