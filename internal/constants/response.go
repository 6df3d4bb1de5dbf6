package constants

import "github.com/gin-gonic/gin"

// Standard response field keys.
const (
	ResponseFieldMessage = "message"
	ResponseFieldDetails = "details"
	ResponseFieldError   = "error"
	ResponseFieldSuccess = "success"
	ResponseFieldData    = "data"
)

// BuildErrorResponse builds a sanitized error payload. Details must never
// carry raw broker response bodies or internal error chains.
func BuildErrorResponse(message, details string) gin.H {
	resp := gin.H{
		ResponseFieldSuccess: false,
		ResponseFieldMessage: message,
	}
	if details != "" {
		resp[ResponseFieldDetails] = details
	}
	return resp
}

// BuildSuccessResponse builds a standard success payload.
func BuildSuccessResponse(message string) gin.H {
	return gin.H{
		ResponseFieldSuccess: true,
		ResponseFieldMessage: message,
	}
}

// BuildDataResponse wraps a payload in the standard envelope.
func BuildDataResponse(data interface{}) gin.H {
	return gin.H{
		ResponseFieldSuccess: true,
		ResponseFieldData:    data,
	}
}
