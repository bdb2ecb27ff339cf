package httputil

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/booking-engine/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError names one input field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// RespondWithError maps err onto a status code and an error body. Internal
// errors never leak their message.
func RespondWithError(c *gin.Context, err error) {
	status, body := ErrorBody(err)
	c.AbortWithStatusJSON(status, body)
}

// ErrorBody is RespondWithError without the write.
func ErrorBody(err error) (int, *Response) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp := NewErrorResponse("validation failed")
		for _, e := range verrs {
			resp.Errors = append(resp.Errors, FieldError{Field: e.Field(), Message: fieldMessage(e)})
		}
		return http.StatusBadRequest, resp
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status := appErr.StatusCode()
		if status == http.StatusInternalServerError {
			return status, NewErrorResponse("internal server error")
		}
		return status, NewErrorResponse(appErr.Message)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, NewErrorResponse("request timeout")
	}

	return http.StatusInternalServerError, NewErrorResponse("internal server error")
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "calendar_date":
		return "must be a date in YYYY-MM-DD format"
	case "hhmm":
		return "must be a time in HH:MM format"
	case "max":
		return "value is too long"
	case "gt":
		return "must be greater than " + e.Param()
	}
	return e.Error()
}
