package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorDetail はエラーレスポンスの error フィールド。
type ErrorDetail struct {
	// Status はHTTPステータスコード。
	Status int `json:"status"`
	// Name はエラーの分類名（例: "ValidationError"）。
	Name string `json:"name"`
	// Message は人が読めるエラーメッセージ。
	Message string `json:"message"`
}

// ErrorResponse はエラーレスポンスのボディ。
type ErrorResponse struct {
	Data  any         `json:"data"`
	Error ErrorDetail `json:"error"`
}

// errorName はステータスコードに対応するエラーの分類名を返す。
func errorName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "ValidationError"
	case http.StatusUnauthorized:
		return "UnauthorizedError"
	case http.StatusForbidden:
		return "ForbiddenError"
	case http.StatusNotFound:
		return "NotFoundError"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLargeError"
	case http.StatusInternalServerError:
		return "InternalServerError"
	default:
		return "ApplicationError"
	}
}

// NewErrorResponse はエラーレスポンスのボディを生成する。
func NewErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Status:  status,
			Name:    errorName(status),
			Message: message,
		},
	}
}

// AbortWithError はエラーレスポンスを返してリクエストを中断する。
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(status, message))
}
