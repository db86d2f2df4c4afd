package response

import (
	"errors"
	"net/http"

	"wagerledger/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码，从 1001 开始
const (
	CodeInsufficientFunds    = 1001
	CodeDuplicateIdentifier  = 1002
	CodeDuplicateDisplayName = 1003
	CodeWrongSecret          = 1004
	CodeAccountSuspended     = 1005
	CodeInvalidBet           = 1006
)

var kindCodes = map[apperr.Kind]int{
	apperr.KindValidation:           CodeParamError,
	apperr.KindInvalidArgument:      CodeInvalidBet,
	apperr.KindNotFound:             CodeNotFound,
	apperr.KindForbidden:            CodeForbidden,
	apperr.KindInsufficientFunds:    CodeInsufficientFunds,
	apperr.KindDuplicateIdentifier:  CodeDuplicateIdentifier,
	apperr.KindDuplicateDisplayName: CodeDuplicateDisplayName,
	apperr.KindWrongSecret:          CodeWrongSecret,
	apperr.KindSuspended:            CodeAccountSuspended,
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// CodeOf 业务错误按 Kind 映射，其余一律是服务器错误
func CodeOf(err error) int {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return CodeServerError
	}
	if code, ok := kindCodes[e.Kind]; ok {
		return code
	}
	return CodeServerError
}

// FromError 把 service 返回的错误写成统一响应，内部错误不暴露细节
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	if code == CodeServerError {
		_ = c.Error(err)
		ServerError(c, "服务器内部错误")
		return
	}
	Error(c, code, err.Error())
}
