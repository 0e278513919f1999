package response

import (
	"errors"
	"net/http"
	"time"

	errs "github.com/campuslink/campus/errors"
	"github.com/gin-gonic/gin"
)

// JSON writes the standard response envelope
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	responsedata := gin.H{
		"message":   message,
		"data":      data,
		"errors":    errorBody(err),
		"status":    http.StatusText(status),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	c.JSON(status, responsedata)
}

func errorBody(err error) interface{} {
	if err == nil {
		return nil
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		if apiErr == nil {
			return nil
		}
		return apiErr
	}
	return err.Error()
}
