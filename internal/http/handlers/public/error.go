package public

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/urlguard"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestLog returns a logger carrying the request id.
func requestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// respondError writes an error envelope and logs the underlying error when
// present. The raw error never reaches the client.
func respondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		requestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// respondGuardError maps a urlguard rejection onto the envelope. Guard errors
// are always client-fault and carry a safe message.
func respondGuardError(c *gin.Context, err error) bool {
	var guardErr *urlguard.Error
	if !errors.As(err, &guardErr) {
		return false
	}
	response.Error(c, response.CodeBadRequest, guardErr.Message)
	return true
}
