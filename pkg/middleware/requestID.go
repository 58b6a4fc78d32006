package middleware

import (
	"context"

	"bountyhub.com/pkg/common"
	"bountyhub.com/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ReqId 透传或生成 request id，写进 gin 上下文、request context 和响应头
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if !common.ValidRequestID(rid) {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Header(common.HeaderRequestID, rid)
		c.Next()
	}
}
