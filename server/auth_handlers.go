package server

import (
	"net/http"

	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/server/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) handleVerifyEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.AuthService.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "Email verified successfully", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleResendVerification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.EmailRequest
		if errs := decode(c, &request); errs != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs)
			return
		}

		if err := s.AuthService.SendVerificationEmail(c.Request.Context(), request.Email); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "Verification email sent", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := s.DB.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			s.Log.Error("health check", zap.Error(err))
			response.JSON(c, "database unreachable", http.StatusServiceUnavailable, nil, err)
			return
		}
		response.JSON(c, "ok", http.StatusOK, nil, nil)
	}
}
