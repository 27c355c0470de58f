// README: Base handler utilities (JSON helpers, flow result and error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripflow/internal/flow"
	"tripflow/internal/modules/aiusage"
	"tripflow/internal/service"
)

// StatusClientClosedRequest is reported when the caller went away before the flow finished.
const StatusClientClosedRequest = 499

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

type flowResponse struct {
	Flow   string         `json:"flow"`
	ID     string         `json:"invocation_id"`
	Output map[string]any `json:"output"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writePlanError maps errors returned before a flow was attempted.
func writePlanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, aiusage.ErrInvalidUser):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQuotaUnavailable):
		writeError(c, http.StatusServiceUnavailable, "quota unavailable")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// writeFlowResult maps an invocation outcome to a status and body.
func writeFlowResult(c *gin.Context, res flow.Result) {
	if res.Succeeded() {
		writeJSON(c, http.StatusOK, flowResponse{Flow: res.Flow, ID: res.ID, Output: res.Output})
		return
	}

	f := res.Failure
	switch f.Kind {
	case flow.FailValidation:
		ve := &flow.ValidationError{Violations: f.Violations}
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: ve.Fields()})
	case flow.FailUnknownFlow:
		writeError(c, http.StatusNotFound, f.Message)
	case flow.FailRateLimited:
		writeError(c, http.StatusTooManyRequests, f.Message)
	case flow.FailTimeout:
		writeError(c, http.StatusGatewayTimeout, f.Message)
	case flow.FailCancelled:
		writeError(c, StatusClientClosedRequest, f.Message)
	case flow.FailConfiguration:
		writeError(c, http.StatusInternalServerError, f.Message)
	default:
		writeError(c, http.StatusBadGateway, f.Message)
	}
}
