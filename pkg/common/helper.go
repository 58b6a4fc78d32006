package common

import (
	"context"
	"errors"
	"net/http"

	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// 对外统一文案，不透出三方或内部细节
const msgTryLater = "service temporarily unavailable, please try again later"

// FailErr 业务错误 -> HTTP
// 对外只回 biz_code + reason + message（data=null），日志里记完整 err + stack
func FailErr(c *gin.Context, err error) {
	xe, ok := xerr.As(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			xe = &xerr.Error{Code: codes.Canceled, Reason: "CANCELED", Message: "request canceled"}
		} else {
			xe = &xerr.Error{Code: codes.Internal, Reason: "INTERNAL", Message: msgTryLater}
		}
	}
	biz, httpStatus := mapCode(xe.Code)

	fields := []zap.Field{
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", biz),
		zap.String("reason", xe.Reason),
		zap.Error(err),
	}
	msg := xe.Message
	switch xe.Code {
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DeadlineExceeded, codes.DataLoss:
		msg = msgTryLater
		if ok {
			fields = append(fields, zap.String("stack", xe.Stack()))
		}
		logger.Error(c, "http error", fields...)
	default:
		logger.Warn(c, "http error", fields...)
	}

	c.JSON(httpStatus, Response{Code: biz, Reason: xe.Reason, Message: msg})
}

func mapCode(gc codes.Code) (biz int, httpStatus int) {
	switch gc {
	case codes.InvalidArgument, codes.OutOfRange:
		return 1001001, http.StatusBadRequest
	case codes.Unauthenticated:
		return 1002001, http.StatusUnauthorized
	case codes.PermissionDenied:
		return 1002003, http.StatusForbidden
	case codes.NotFound:
		return 1001004, http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return 1001009, http.StatusConflict
	case codes.FailedPrecondition:
		return 1001022, http.StatusUnprocessableEntity
	case codes.ResourceExhausted:
		return 1003001, http.StatusTooManyRequests
	case codes.Unavailable, codes.DeadlineExceeded:
		return 1004001, http.StatusServiceUnavailable
	case codes.Canceled:
		return 1004099, 499
	default:
		return 5000000, http.StatusInternalServerError
	}
}
