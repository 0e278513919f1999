package db

import (
	"context"

	"github.com/campuslink/campus/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate mockgen -destination=../mocks/chat_repository_mock.go -package=mocks github.com/campuslink/campus/db ChatRepository

type ChatRepository interface {
	FindChatByID(ctx context.Context, id uint) (*models.Chat, error)
	FindChatWithDetails(ctx context.Context, id uint) (*models.Chat, error)
	FindChatByListingAndBuyer(ctx context.Context, listingID, buyerID uint) (*models.Chat, error)
	// CreateChat inserts chat unless a chat for the same (listing, buyer)
	// exists. created reports whether a new row was written; either way chat
	// holds the stored row afterwards.
	CreateChat(ctx context.Context, chat *models.Chat) (created bool, err error)
	ListChatsForUser(ctx context.Context, userID uint) ([]models.Chat, error)
	RecentMessages(ctx context.Context, chatID uint, limit int) ([]models.Message, error)
	ListMessages(ctx context.Context, chatID uint, offset, limit int) ([]models.Message, int64, error)
	CreateMessage(ctx context.Context, message *models.Message) error
}

type chatRepo struct {
	DB *gorm.DB
}

func NewChatRepo(db *GormDB) ChatRepository {
	return &chatRepo{db.DB}
}

func (r *chatRepo) FindChatByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	if err := r.DB.WithContext(ctx).First(&chat, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find chat %d", id)
	}
	return &chat, nil
}

func (r *chatRepo) FindChatWithDetails(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.DB.WithContext(ctx).
		Preload("Listing").
		Preload("Buyer").
		Preload("Seller").
		First(&chat, id).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find chat %d", id)
	}
	return &chat, nil
}

func (r *chatRepo) FindChatByListingAndBuyer(ctx context.Context, listingID, buyerID uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.DB.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		First(&chat).Error
	if err != nil {
		return nil, errors.Wrap(err, "find chat by listing and buyer")
	}
	return &chat, nil
}

func (r *chatRepo) CreateChat(ctx context.Context, chat *models.Chat) (bool, error) {
	tx := r.DB.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(chat)
	if tx.Error != nil {
		return false, errors.Wrap(tx.Error, "create chat")
	}
	if tx.RowsAffected == 1 {
		return true, nil
	}

	// lost the race against a concurrent create for the same pair
	existing, err := r.FindChatByListingAndBuyer(ctx, chat.ListingID, chat.BuyerID)
	if err != nil {
		return false, err
	}
	*chat = *existing
	return false, nil
}

func (r *chatRepo) ListChatsForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.DB.WithContext(ctx).
		Preload("Listing").
		Preload("Buyer").
		Preload("Seller").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, errors.Wrap(err, "list chats")
	}
	return chats, nil
}

// RecentMessages returns the newest limit messages, newest first
func (r *chatRepo) RecentMessages(ctx context.Context, chatID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.DB.WithContext(ctx).
		Preload("Sender").
		Where("chat_id = ?", chatID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "recent messages")
	}
	return messages, nil
}

func (r *chatRepo) ListMessages(ctx context.Context, chatID uint, offset, limit int) ([]models.Message, int64, error) {
	var (
		messages []models.Message
		total    int64
	)
	scope := func() *gorm.DB {
		return r.DB.WithContext(ctx).Model(&models.Message{}).Where("chat_id = ?", chatID)
	}
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count messages")
	}
	err := scope().Preload("Sender").
		Order("timestamp DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list messages")
	}
	return messages, total, nil
}

func (r *chatRepo) CreateMessage(ctx context.Context, message *models.Message) error {
	err := r.DB.WithContext(ctx).Omit("Sender").Create(message).Error
	return errors.Wrap(err, "create message")
}
