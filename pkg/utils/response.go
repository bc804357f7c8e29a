package utils

import (
	appErrors "prediction-platform/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope shared by every endpoint.
type Response struct {
	Status  bool                   `json:"status"`
	Message string                 `json:"message"`
	Data    interface{}            `json:"data,omitempty"`
	Errors  []appErrors.FieldError `json:"errors,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Status:  false,
		Message: message,
	})
}

// ValidationResponse writes a 400 with the per-field error list.
func ValidationResponse(c *gin.Context, statusCode int, message string, fields []appErrors.FieldError) {
	c.JSON(statusCode, Response{
		Status:  false,
		Message: message,
		Errors:  fields,
	})
}
