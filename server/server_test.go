package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/db"
	errs "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/mocks"
	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/realtime"
	"github.com/campuslink/campus/services"
	"github.com/campuslink/campus/services/jwt"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type testEnv struct {
	srv    *httptest.Server
	db     *gorm.DB
	hub    *realtime.Hub
	mailer *mocks.MockMailer
}

// newTestEnv serves the full stack over sqlite with chat 42 between buyer 3
// and seller 7 on listing 11. User 9 takes part in nothing.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("GIN_MODE", "test")
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "campus.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	for _, u := range []models.User{
		{Model: models.Model{ID: 3}, Username: "buyer3", Name: "Bea", Email: "bea@campus.test"},
		{Model: models.Model{ID: 7}, Username: "seller7", Name: "Sam", Email: "sam@campus.test"},
		{Model: models.Model{ID: 9}, Username: "user9", Email: "nine@campus.test"},
	} {
		u := u
		require.NoError(t, gdb.Create(&u).Error)
	}
	require.NoError(t, gdb.Omit("Seller").Create(&models.Listing{
		Model: models.Model{ID: 11}, SellerID: 7, Title: "Desk lamp", Category: models.CategorySublet,
	}).Error)
	require.NoError(t, gdb.Omit("Listing", "Buyer", "Seller").Create(&models.Chat{
		Model: models.Model{ID: 42}, ListingID: 11, BuyerID: 3, SellerID: 7,
	}).Error)

	conf := &config.Config{
		JWTSecret:        testSecret,
		FrontendURL:      "https://campus.test",
		ChatHistoryLimit: 50,
		ResetRateLimit:   5,
	}
	log := zap.NewNop()
	gormDB := &db.GormDB{DB: gdb}
	authRepo := db.NewAuthRepo(gormDB)
	mailer := mocks.NewMockMailer(gomock.NewController(t))

	authService := services.NewAuthService(authRepo, mailer, conf, log)
	chatService := services.NewChatService(db.NewChatRepo(gormDB), db.NewListingRepo(gormDB), conf, log)
	hub := realtime.NewHub(log)

	s := &Server{
		Config:      conf,
		DB:          gormDB,
		AuthService: authService,
		ChatService: chatService,
		Relay:       realtime.NewRelay(authService, chatService, chatService, hub, nil, conf.ChatHistoryLimit, log),
		Log:         log,
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.stopSessions()
		srv.Close()
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &testEnv{srv: srv, db: gdb, hub: hub, mailer: mailer}
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok, err := jwt.GenerateAccessToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) dial(t *testing.T, chatParam, credential string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/chat/" + chatParam
	if credential != "" {
		url += "?token=" + credential
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close, got frame %q err %v", data, err)
	return closeErr.Code
}

func TestChatSocket_BuyerMessageReachesBothParticipants(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	sellerConn := env.dial(t, "42", token(t, 7))
	req.Equal("chat_history", readFrame(t, sellerConn)["type"])
	buyerConn := env.dial(t, "42", token(t, 3))
	history := readFrame(t, buyerConn)
	req.Equal("chat_history", history["type"])
	req.Empty(history["messages"])

	req.NoError(buyerConn.WriteMessage(websocket.TextMessage, []byte(`{"message": "is this available?"}`)))

	for _, conn := range []*websocket.Conn{buyerConn, sellerConn} {
		frame := readFrame(t, conn)
		req.Equal("chat_message", frame["type"])
		req.Equal("is this available?", frame["message"])
		req.Equal(float64(3), frame["sender_id"])
		req.Equal(map[string]interface{}{"id": float64(3), "username": "buyer3", "name": "Bea"}, frame["sender"])
		ts, err := time.Parse(time.RFC3339Nano, frame["timestamp"].(string))
		req.NoError(err)
		req.WithinDuration(time.Now(), ts, time.Minute)
	}

	var rows []models.Message
	req.NoError(env.db.Where("chat_id = ?", 42).Find(&rows).Error)
	req.Len(rows, 1)
	req.Equal(uint(3), rows[0].SenderID)
	req.Equal("is this available?", rows[0].Content)
}

func TestChatSocket_CloseCodes(t *testing.T) {
	cases := []struct {
		name       string
		chatParam  string
		credential func(t *testing.T) string
		want       int
	}{
		{"stranger", "42", func(t *testing.T) string { return token(t, 9) }, realtime.CloseNotAuthorized},
		{"missing token", "42", func(*testing.T) string { return "" }, realtime.CloseMissingCredential},
		{"garbage token", "42", func(*testing.T) string { return "not.a.jwt" }, realtime.CloseInvalidCredential},
		{"deleted account", "42", func(t *testing.T) string { return token(t, 99) }, realtime.CloseUnknownSubject},
		{"unknown conversation", "43", func(t *testing.T) string { return token(t, 3) }, realtime.CloseConversationNotFound},
		{"non numeric conversation", "abc", func(t *testing.T) string { return token(t, 3) }, realtime.CloseConversationNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			conn := env.dial(t, tc.chatParam, tc.credential(t))
			require.Equal(t, tc.want, readCloseCode(t, conn))
			require.Equal(t, 0, env.hub.Groups())
		})
	}
}

func TestChatSocket_HistoryIsCappedAndOldestFirst(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 60; i++ {
		req.NoError(env.db.Omit("Sender").Create(&models.Message{
			ChatID:    42,
			SenderID:  7,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	conn := env.dial(t, "42", token(t, 3))
	history := readFrame(t, conn)
	messages := history["messages"].([]interface{})
	req.Len(messages, 50)
	req.Equal("message 11", messages[0].(map[string]interface{})["message"])
	req.Equal("message 60", messages[49].(map[string]interface{})["message"])
	req.Equal("seller7", messages[0].(map[string]interface{})["sender"].(map[string]interface{})["username"])
}

func TestChatSocket_MalformedFrameKeepsConnection(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	conn := env.dial(t, "42", token(t, 3))
	readFrame(t, conn)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"message": 12}`)))
	req.Equal("error", readFrame(t, conn)["type"])

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"message": "still here"}`)))
	req.Equal("chat_message", readFrame(t, conn)["type"])
}

func TestChatSocket_EscapedTextWithinCharacterLimit(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	conn := env.dial(t, "42", token(t, 3))
	readFrame(t, conn)

	escaped := `{"message":"` + strings.Repeat(`\u00e9`, 3000) + `"}`
	req.Greater(len(escaped), 16*1024)
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(escaped)))
	frame := readFrame(t, conn)
	req.Equal("chat_message", frame["type"])
	req.Equal(strings.Repeat("é", 3000), frame["message"])

	tooLong := `{"message":"` + strings.Repeat(`\u00e9`, realtime.MaxMessageLength+1) + `"}`
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(tooLong)))
	req.Equal("error", readFrame(t, conn)["type"])

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"message": ""}`)))
	empty := readFrame(t, conn)
	req.Equal("chat_message", empty["type"])
	req.Equal("", empty["message"])
}

func (e *testEnv) do(t *testing.T, method, path string, userID uint, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	request, err := http.NewRequest(method, e.srv.URL+path, &payload)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		request.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestChatAPI(t *testing.T) {
	env := newTestEnv(t)

	t.Run("requires a bearer token", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/chats", 0, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects tokens of deleted accounts", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/v1/chats", 99, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, errs.ErrUserNotFound.Error(), body["message"])
	})

	t.Run("opens a chat once per listing and buyer", func(t *testing.T) {
		req := require.New(t)
		resp, body := env.do(t, http.MethodPost, "/api/v1/chats", 9, gin.H{"listing": 11})
		req.Equal(http.StatusCreated, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		req.Equal(float64(9), data["buyer"])
		req.Equal(float64(7), data["seller"])

		resp, body = env.do(t, http.MethodPost, "/api/v1/chats", 9, gin.H{"listing": 11})
		req.Equal(http.StatusOK, resp.StatusCode)
		req.Equal(data["id"], body["data"].(map[string]interface{})["id"])
	})

	t.Run("refuses a chat on your own listing", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/chats", 7, gin.H{"listing": 11})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("refuses an unknown listing", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/chats", 3, gin.H{"listing": 500})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("hides chats from non participants", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/chats/42", 3, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = env.do(t, http.MethodGet, "/api/v1/chats/42", 9, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = env.do(t, http.MethodGet, "/api/v1/chats/42/messages", 9, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("lists messages newest first", func(t *testing.T) {
		req := require.New(t)
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i, content := range []string{"first", "second"} {
			req.NoError(env.db.Omit("Sender").Create(&models.Message{
				ChatID: 42, SenderID: 3, Content: content, Timestamp: base.Add(time.Duration(i) * time.Second),
			}).Error)
		}

		resp, body := env.do(t, http.MethodGet, "/api/v1/chats/42/messages?page=1&per_page=1", 7, nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		req.Equal(float64(2), data["total"])
		messages := data["messages"].([]interface{})
		req.Len(messages, 1)
		req.Equal("second", messages[0].(map[string]interface{})["content"])
	})
}

func TestPasswordAPI(t *testing.T) {
	env := newTestEnv(t)

	t.Run("does not reveal unknown addresses", func(t *testing.T) {
		env.mailer.EXPECT().SendResetPassword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		resp, _ := env.do(t, http.MethodPost, "/api/v1/password/forgot", 0, gin.H{"email": "  NOBODY@campus.test "})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("validates the address", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/v1/password/forgot", 0, gin.H{"email": "not-an-email"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, body["errors"].(map[string]interface{})["message"], "email")
	})

	t.Run("rate limits per address", func(t *testing.T) {
		env.mailer.EXPECT().SendResetPassword(gomock.Any(), "bea@campus.test", "Bea", gomock.Any()).Return("id", nil).Times(5)
		var last int
		for i := 0; i < 6; i++ {
			resp, _ := env.do(t, http.MethodPost, "/api/v1/password/forgot", 0, gin.H{"email": "bea@campus.test"})
			last = resp.StatusCode
		}
		require.Equal(t, http.StatusTooManyRequests, last)
	})

	t.Run("resets with the mailed token", func(t *testing.T) {
		req := require.New(t)
		var user models.User
		req.NoError(env.db.First(&user, 3).Error)
		req.NotEmpty(user.PasswordResetToken)

		resp, _ := env.do(t, http.MethodPost, "/api/v1/password/reset/"+user.PasswordResetToken, 0,
			gin.H{"password": "fresh-password", "confirm_password": "fresh-password"})
		req.Equal(http.StatusOK, resp.StatusCode)

		req.NoError(env.db.First(&user, 3).Error)
		req.NoError(user.VerifyPassword("fresh-password"))
		req.Empty(user.PasswordResetToken)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["message"])
}
