// README: Quota usage handler. Reports how many flow invocations the caller has left this month.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripflow/internal/http/middleware"
	"tripflow/internal/modules/aiusage"
)

// UsageReader reports a caller's quota. *aiusage.Service satisfies it.
type UsageReader interface {
	Usage(ctx context.Context, uid string) (aiusage.Usage, error)
}

type UsageHandler struct {
	quota UsageReader
}

// NewUsageHandler returns a handler over quota, which may be nil when metering is off.
func NewUsageHandler(quota UsageReader) *UsageHandler {
	return &UsageHandler{quota: quota}
}

// Get handles GET /api/usage for the caller named by X-User-ID.
func (h *UsageHandler) Get(c *gin.Context) {
	if h.quota == nil {
		writeError(c, http.StatusNotFound, "quota is not enabled")
		return
	}
	uid := middleware.CallerUID(c)
	if uid == "" {
		writeError(c, http.StatusBadRequest, "missing "+middleware.UserIDHeader)
		return
	}

	u, err := h.quota.Usage(c.Request.Context(), uid)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, u)
	case errors.Is(err, aiusage.ErrInvalidUser):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusServiceUnavailable, "quota unavailable")
	}
}
