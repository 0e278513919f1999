package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/campuslink/campus/db"
	"github.com/campuslink/campus/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

//go:generate mockgen -destination=../mocks/push_sender_mock.go -package=mocks github.com/campuslink/campus/notifications Sender

const (
	sendTimeout    = 10 * time.Second
	maxPreviewSize = 120
)

// Sender delivers one push message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewFirebaseSender builds an FCM client from a service account file
func NewFirebaseSender(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return client, nil
}

// PushNotifier tells the other participant of a chat about a new message.
// Sends run in the background and never hold up the chat.
type PushNotifier struct {
	users  db.AuthRepository
	sender Sender
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewPushNotifier(users db.AuthRepository, sender Sender, log *zap.Logger) *PushNotifier {
	return &PushNotifier{
		users:  users,
		sender: sender,
		log:    log.Named("push"),
	}
}

func (p *PushNotifier) MessageSent(chat *models.Chat, message *models.Message) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := p.notify(ctx, chat, message); err != nil {
			p.log.Warn("push notification failed",
				zap.Uint("chat_id", chat.ID),
				zap.Uint("message_id", message.ID),
				zap.Error(err))
		}
	}()
}

func (p *PushNotifier) notify(ctx context.Context, chat *models.Chat, message *models.Message) error {
	recipient, err := p.users.FindUserByID(ctx, chat.Counterpart(message.SenderID))
	if err != nil {
		return err
	}
	if recipient.DeviceToken == "" {
		return nil
	}

	_, err = p.sender.Send(ctx, &messaging.Message{
		Token: recipient.DeviceToken,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("New message from %s", message.Sender.DisplayName()),
			Body:  preview(message.Content),
		},
		Data: map[string]string{
			"type":       "chat_message",
			"chat_id":    fmt.Sprint(chat.ID),
			"message_id": fmt.Sprint(message.ID),
		},
	})
	return err
}

// Wait blocks until every in-flight notification has finished
func (p *PushNotifier) Wait() {
	p.wg.Wait()
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= maxPreviewSize {
		return content
	}
	return string(runes[:maxPreviewSize]) + "…"
}
