package server

import (
	"net/http"

	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/server/response"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleForgotPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.EmailRequest
		if errs := decode(c, &request); errs != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs)
			return
		}

		if err := s.AuthService.SendEmailForPasswordReset(c.Request.Context(), request.Email); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}

		response.JSON(c, "If the address belongs to an account, a reset link has been sent", http.StatusOK, nil, nil)
	}
}

func (s *Server) ResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.ResetPassword
		if errs := decode(c, &request); errs != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs)
			return
		}

		if err := s.AuthService.ResetPassword(c.Request.Context(), c.Param("token"), &request); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "Password Reset Successfully", http.StatusOK, nil, nil)
	}
}
