package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeNotFound           = 40400
	CodeRequestTimeout     = 40800
	CodePayloadTooLarge    = 41300
	CodeUnprocessable      = 42200
	CodeInternalServer     = 50000
	CodeBadGateway         = 50200
	CodeServiceUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	ErrorWithDetails(c, httpStatus, code, message, "")
}

// ErrorWithDetails keeps technical details apart from the headline.
func ErrorWithDetails(c *gin.Context, httpStatus, code int, message, details string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
