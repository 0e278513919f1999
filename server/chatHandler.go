package server

import (
	"errors"
	"net/http"
	"strconv"

	errs "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/server/response"
	"github.com/campuslink/campus/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleOpenChat returns the caller's chat on a listing, creating it first
// when needed
func (s *Server) handleOpenChat() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		var request models.CreateChatRequest
		if err := decode(c, &request); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		chat, created, err := s.ChatService.OpenChat(c.Request.Context(), user, request.ListingID)
		if err != nil {
			s.respondChatError(c, err)
			return
		}
		if details, err := s.ChatService.GetChat(c.Request.Context(), user, chat.ID); err == nil {
			chat = details
		}

		if created {
			response.JSON(c, "Chat created", http.StatusCreated, chat, nil)
			return
		}
		response.JSON(c, "Chat already exists", http.StatusOK, chat, nil)
	}
}

func (s *Server) handleListChats() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		chats, err := s.ChatService.ListChats(c.Request.Context(), user)
		if err != nil {
			s.respondChatError(c, err)
			return
		}
		response.JSON(c, "Chats retrieved successfully", http.StatusOK, chats, nil)
	}
}

func (s *Server) handleGetChat() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		chatID, err := strconv.ParseUint(c.Param("id"), 10, 0)
		if err != nil {
			response.JSON(c, "", http.StatusNotFound, nil, errs.New(errs.ErrChatNotFound.Error(), http.StatusNotFound))
			return
		}

		chat, err := s.ChatService.GetChat(c.Request.Context(), user, uint(chatID))
		if err != nil {
			s.respondChatError(c, err)
			return
		}
		response.JSON(c, "Chat retrieved successfully", http.StatusOK, chat, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		chatID, err := strconv.ParseUint(c.Param("id"), 10, 0)
		if err != nil {
			response.JSON(c, "", http.StatusNotFound, nil, errs.New(errs.ErrChatNotFound.Error(), http.StatusNotFound))
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(services.DefaultHistoryLimit)))

		messages, total, err := s.ChatService.Messages(c.Request.Context(), user, uint(chatID), services.Page{Number: page, PerPage: perPage})
		if err != nil {
			s.respondChatError(c, err)
			return
		}

		results := make([]models.MessageResponse, 0, len(messages))
		for i := range messages {
			results = append(results, messages[i].Response())
		}
		response.JSON(c, "Messages retrieved successfully", http.StatusOK, gin.H{
			"messages": results,
			"total":    total,
		}, nil)
	}
}

// respondChatError maps chat service errors to responses. A chat the caller
// does not take part in looks the same as one that does not exist.
func (s *Server) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrChatNotFound), errors.Is(err, errs.ErrForbidden):
		response.JSON(c, "", http.StatusNotFound, nil, errs.New(errs.ErrChatNotFound.Error(), http.StatusNotFound))
	case errors.Is(err, errs.ErrListingNotFound), errors.Is(err, errs.ErrSelfChat):
		response.JSON(c, "", http.StatusBadRequest, nil, errs.New(err.Error(), http.StatusBadRequest))
	default:
		s.Log.Error("chat request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.JSON(c, "", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
	}
}
