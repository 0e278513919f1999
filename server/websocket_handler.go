package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/campuslink/campus/realtime"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleChatSocket upgrades first so that credential and membership
// failures can be reported to the client as close codes
func (s *Server) handleChatSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.Log.Warn("websocket upgrade failed",
				zap.String("conversation_id", c.Param("conversation_id")),
				zap.Error(err))
			return
		}

		session := s.Relay.NewSession(realtime.NewConnection(ws))
		session.Run(s.sessions, c.Param("conversation_id"), c.Query("token"))
	}
}

// checkOrigin accepts clients without an Origin header and browsers on an
// allowed origin
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.Config.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.Config.AllowedOrigins {
		if strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}
