package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
)

// Error renders the last error a handler attached with c.Error as the JSON envelope
// of errutil.BaseError. Handlers that already wrote a response are left alone.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := errutil.ToBaseError(last.Err)
		status := be.Code.HTTPStatus()
		if status >= 500 {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("code", string(be.Code)),
				zap.Error(last.Err),
			)
		}

		c.AbortWithStatusJSON(status, be.JSON())
	}
}
