package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondEngineError maps scheduler errors onto 400/404/500. Internal
// failures are logged and never echoed to the client.
func respondEngineError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, spaced.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, spaced.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		log.Error("Scheduler request failed", "path", c.FullPath(), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}
