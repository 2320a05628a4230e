package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/task"
)

// errorBody 是所有错误响应的格式。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidContent, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure, xerrors.CodeConfigMissing:
		return http.StatusServiceUnavailable
	case xerrors.CodeQueueFailure, task.CodeTaskPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := xerrors.CodeOf(err)
	c.AbortWithStatusJSON(statusFor(code), gin.H{"error": errorBody{
		Code:    string(code),
		Message: xerrors.UserMessage(err),
	}})
}
