package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	errs "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/models"
	"github.com/go-playground/validator/v10"
)

const (
	FrameChatHistory = "chat_history"
	FrameChatMessage = "chat_message"
	FrameError       = "error"

	MaxMessageLength = 4000
)

var validate = validator.New()

type inboundFrame struct {
	Message *string `json:"message" validate:"required,max=4000"`
}

// parseInbound accepts exactly {"message": <string>}. Empty text is allowed.
func parseInbound(data []byte) (string, error) {
	var frame inboundFrame
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&frame); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return "", fmt.Errorf("%w: trailing data", errs.ErrMalformedInput)
	}
	if err := validate.Struct(frame); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrMalformedInput, err)
	}
	return *frame.Message, nil
}

type HistoryEntry struct {
	MessageID uint               `json:"message_id"`
	Message   string             `json:"message"`
	Timestamp string             `json:"timestamp"`
	Sender    models.UserSummary `json:"sender"`
	SenderID  uint               `json:"sender_id"`
}

type HistoryFrame struct {
	Type     string         `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

type ChatMessageFrame struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	MessageID uint               `json:"message_id"`
	SenderID  uint               `json:"sender_id"`
	Sender    models.UserSummary `json:"sender"`
	Timestamp string             `json:"timestamp"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func newHistoryFrame(messages []models.Message) HistoryFrame {
	entries := make([]HistoryEntry, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		entries = append(entries, HistoryEntry{
			MessageID: m.ID,
			Message:   m.Content,
			Timestamp: formatTimestamp(m.Timestamp),
			Sender:    m.Sender.Summary(),
			SenderID:  m.SenderID,
		})
	}
	return HistoryFrame{Type: FrameChatHistory, Messages: entries}
}

func newChatMessageFrame(m *models.Message, sender *models.User) ChatMessageFrame {
	return ChatMessageFrame{
		Type:      FrameChatMessage,
		Message:   m.Content,
		MessageID: m.ID,
		SenderID:  sender.ID,
		Sender:    sender.Summary(),
		Timestamp: formatTimestamp(m.Timestamp),
	}
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}
