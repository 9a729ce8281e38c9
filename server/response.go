package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/whisper-gateway/errors"
)

// RetryAfterSeconds is sent with retryable 503 answers: the model is busy
// or still loading.
const RetryAfterSeconds = 5

// RespondWithError writes err as the standard error body. An
// *apperrors.AppError keeps its status and code; anything else is a 500.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}
	if appErr.Retryable && appErr.HTTPStatus == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}
