package middleware

import (
	"net/http"
	"runtime/debug"

	"bountyhub.com/pkg/common"
	"bountyhub.com/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				rid := common.RequestIDFromGin(c)
				logger.Error(c, "http panic",
					zap.String("request_id", rid),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()),
				)
				common.Fail(c, http.StatusInternalServerError, 5000000, "service temporarily unavailable, please try again later")
				c.Abort()
			}
		}()
		c.Next()
	}
}
