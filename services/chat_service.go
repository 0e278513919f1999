package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/db"
	apiError "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultHistoryLimit = 50

type ChatService interface {
	// OpenChat returns the buyer's chat on a listing, creating it on first
	// use. created is false when the chat already existed.
	OpenChat(ctx context.Context, buyer *models.User, listingID uint) (chat *models.Chat, created bool, err error)
	ListChats(ctx context.Context, user *models.User) ([]models.Chat, error)
	GetChat(ctx context.Context, user *models.User, chatID uint) (*models.Chat, error)
	Authorize(ctx context.Context, user *models.User, chatID uint) (*models.Chat, error)
	History(ctx context.Context, chatID uint, limit int) ([]models.Message, error)
	Append(ctx context.Context, chatID uint, sender *models.User, content string) (*models.Message, error)
	Messages(ctx context.Context, user *models.User, chatID uint, page Page) ([]models.Message, int64, error)
}

// Page is a 1-based page request
type Page struct {
	Number  int
	PerPage int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 || p.PerPage > 100 {
		p.PerPage = DefaultHistoryLimit
	}
	return p
}

type chatService struct {
	Config      *config.Config
	chatRepo    db.ChatRepository
	listingRepo db.ListingRepository
	log         *zap.Logger
	now         func() time.Time
}

func NewChatService(chatRepo db.ChatRepository, listingRepo db.ListingRepository, conf *config.Config, log *zap.Logger) ChatService {
	return &chatService{
		Config:      conf,
		chatRepo:    chatRepo,
		listingRepo: listingRepo,
		log:         log.Named("chat"),
		now:         time.Now,
	}
}

func (s *chatService) OpenChat(ctx context.Context, buyer *models.User, listingID uint) (*models.Chat, bool, error) {
	listing, err := s.listingRepo.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apiError.ErrListingNotFound
		}
		return nil, false, apiError.Storage("find listing", err)
	}
	if listing.SellerID == buyer.ID {
		return nil, false, apiError.ErrSelfChat
	}

	existing, err := s.chatRepo.FindChatByListingAndBuyer(ctx, listing.ID, buyer.ID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, apiError.Storage("find chat", err)
	}

	chat := &models.Chat{
		ListingID: listing.ID,
		BuyerID:   buyer.ID,
		SellerID:  listing.SellerID,
	}
	created, err := s.chatRepo.CreateChat(ctx, chat)
	if err != nil {
		return nil, false, apiError.Storage("create chat", err)
	}
	if created {
		s.log.Info("chat opened",
			zap.Uint("chat_id", chat.ID),
			zap.Uint("listing_id", listing.ID),
			zap.Uint("buyer_id", buyer.ID),
			zap.Uint("seller_id", listing.SellerID))
	}
	return chat, created, nil
}

func (s *chatService) ListChats(ctx context.Context, user *models.User) ([]models.Chat, error) {
	chats, err := s.chatRepo.ListChatsForUser(ctx, user.ID)
	if err != nil {
		return nil, apiError.Storage("list chats", err)
	}
	return chats, nil
}

// GetChat hides chats the user does not take part in behind ErrChatNotFound
func (s *chatService) GetChat(ctx context.Context, user *models.User, chatID uint) (*models.Chat, error) {
	chat, err := s.chatRepo.FindChatWithDetails(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrChatNotFound
		}
		return nil, apiError.Storage("get chat", err)
	}
	if !chat.HasParticipant(user.ID) {
		return nil, apiError.ErrChatNotFound
	}
	return chat, nil
}

func (s *chatService) Authorize(ctx context.Context, user *models.User, chatID uint) (*models.Chat, error) {
	chat, err := s.chatRepo.FindChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrChatNotFound
		}
		return nil, apiError.Storage("authorize", err)
	}
	if !chat.HasParticipant(user.ID) {
		return nil, apiError.ErrForbidden
	}
	return chat, nil
}

// History returns the newest limit messages in chronological order
func (s *chatService) History(ctx context.Context, chatID uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages, err := s.chatRepo.RecentMessages(ctx, chatID, limit)
	if err != nil {
		return nil, apiError.Storage("history", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

func (s *chatService) Append(ctx context.Context, chatID uint, sender *models.User, content string) (*models.Message, error) {
	message := &models.Message{
		ChatID:    chatID,
		SenderID:  sender.ID,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	if err := s.chatRepo.CreateMessage(ctx, message); err != nil {
		return nil, apiError.Storage(fmt.Sprintf("append to chat %d", chatID), err)
	}
	message.Sender = *sender
	return message, nil
}

func (s *chatService) Messages(ctx context.Context, user *models.User, chatID uint, page Page) ([]models.Message, int64, error) {
	if _, err := s.Authorize(ctx, user, chatID); err != nil {
		return nil, 0, err
	}
	page = page.normalize()
	messages, total, err := s.chatRepo.ListMessages(ctx, chatID, (page.Number-1)*page.PerPage, page.PerPage)
	if err != nil {
		return nil, 0, apiError.Storage("list messages", err)
	}
	return messages, total, nil
}
