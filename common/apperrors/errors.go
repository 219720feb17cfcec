package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches a cause to a sentinel without mutating it
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Is lets wrapped copies match their sentinel via errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Common error types
var (
	ErrBadRequest     = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized   = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrNotFound       = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer = New(http.StatusInternalServerError, "Internal server error", nil)
)

// Checkout error types
var (
	ErrEmptyCart            = New(http.StatusBadRequest, "Cart is empty", nil)
	ErrCheckoutCreateFailed = New(http.StatusBadGateway, "Checkout could not be started", nil)
	ErrUnknownOrder         = New(http.StatusNotFound, "Order not found", nil)
	ErrAmountMismatch       = New(http.StatusConflict, "Paid amount does not match order", nil)
	ErrOrderNotPending      = New(http.StatusConflict, "Order is no longer pending", nil)
	ErrOrderNotPaid         = New(http.StatusConflict, "Order is not paid", nil)
)

// HandleError writes an application error as a JSON response
func HandleError(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Wrap(ErrInternalServer, err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
