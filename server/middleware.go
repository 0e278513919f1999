package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	errs "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/server/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authorize resolves the bearer token into the calling user
func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := getTokenFromHeader(c)
		if accessToken == "" {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		user, err := s.AuthService.ResolveToken(c.Request.Context(), accessToken)
		if err != nil {
			switch {
			case errors.Is(err, errs.ErrInvalidCredential):
				respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			case errors.Is(err, errs.ErrUnknownSubject):
				respondAndAbort(c, errs.ErrUserNotFound.Error(), http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			default:
				s.Log.Error("resolve access token", zap.Error(err))
				respondAndAbort(c, "unable to find entity", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			}
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID)
		c.Set("access_token", accessToken)
		c.Next()
	}
}

func limitRateForPasswordReset(store ratelimit.Store) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errs.ErrorHandler,
		KeyFunc:      keyFunc,
	})
}

// keyFunc limits by the email in the body, falling back to the client ip.
// The body is restored for the handler.
func keyFunc(c *gin.Context) string {
	buf, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return c.ClientIP()
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(buf))

	var request models.EmailRequest
	if err := json.Unmarshal(buf, &request); err != nil || request.Email == "" {
		return c.ClientIP()
	}
	return strings.ToLower(strings.TrimSpace(request.Email))
}

// respondAndAbort calls response.JSON and aborts the Context
func respondAndAbort(c *gin.Context, message string, status int, data interface{}, e *errs.Error) {
	response.JSON(c, message, status, data, e)
	c.Abort()
}

// getTokenFromHeader returns the token string in the authorization header
func getTokenFromHeader(c *gin.Context) string {
	authHeader := c.Request.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// currentUser returns the user stored by Authorize
func currentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}
