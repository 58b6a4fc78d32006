package http

import (
	"errors"
	"net/http"
	"strings"

	"bountyhub.com/internal/settlement/handler"
	"bountyhub.com/internal/settlement/session"
	"bountyhub.com/pkg/common"
	"bountyhub.com/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const headerAdminToken = "X-Admin-Token"

func adminToken(c *gin.Context) string {
	if t := c.GetHeader(headerAdminToken); t != "" {
		return t
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// AdminSession 会话由后台登录服务写入同一个存储，这里只校验
func AdminSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := adminToken(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, 1001401, "admin session required")
			c.Abort()
			return
		}
		id, err := store.Get(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				logger.Error(c, "admin session lookup failed", zap.Error(err))
			}
			common.Fail(c, http.StatusUnauthorized, 1001401, "admin session invalid or expired")
			c.Abort()
			return
		}
		c.Set(handler.CtxKeyAdminID, id)
		c.Next()
	}
}

// Logout DELETE /admin/session
func Logout(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Request.Context(), adminToken(c)); err != nil {
			common.FailErr(c, err)
			return
		}
		common.Success(c, nil)
	}
}
