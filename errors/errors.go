package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is the error carried in API responses
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// New returns an *Error with the given message and http status
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrForbiddenAccess     = New("forbidden", http.StatusForbidden)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrInvalidPassword     = New("invalid password", http.StatusUnprocessableEntity)
	ErrPasswordMismatch    = New("passwords do not match", http.StatusBadRequest)
)

// Sentinel errors shared by the chat core. Callers branch on them with errors.Is.
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownSubject    = errors.New("credential subject does not exist")
	ErrChatNotFound      = errors.New("chat not found")
	ErrForbidden         = errors.New("user is not a participant of this chat")
	ErrStorage           = errors.New("storage failure")
	ErrMalformedInput    = errors.New("malformed input")
	ErrListingNotFound   = errors.New("listing not found")
	ErrSelfChat          = errors.New("cannot open a chat on your own listing")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidToken      = errors.New("token is invalid or has expired")
)

// Storage wraps err so that errors.Is(err, ErrStorage) holds
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}

// ErrorHandler is called by the rate limiter when a client exhausts its quota
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message": "too many requests, try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
		"errors":  New("rate limit exceeded", http.StatusTooManyRequests),
		"status":  http.StatusText(http.StatusTooManyRequests),
	})
}
