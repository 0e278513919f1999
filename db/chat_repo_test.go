package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/campuslink/campus/models"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *GormDB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "campus.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &GormDB{DB: gdb}
}

func seedUser(t *testing.T, g *GormDB, id uint, username string) *models.User {
	t.Helper()
	user := &models.User{
		Model:    models.Model{ID: id},
		Username: username,
		Name:     username,
		Email:    username + "@campus.test",
	}
	require.NoError(t, g.DB.Create(user).Error)
	return user
}

func seedListing(t *testing.T, g *GormDB, id, sellerID uint) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		Model:    models.Model{ID: id},
		SellerID: sellerID,
		Title:    "Calculus textbook",
		Category: models.CategoryBook,
		Price:    25,
	}
	require.NoError(t, g.DB.Omit("Seller").Create(listing).Error)
	return listing
}

func TestChatRepo_CreateChatIsUniquePerListingAndBuyer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g := newTestDB(t)
	seedUser(t, g, 3, "buyer3")
	seedUser(t, g, 7, "seller7")
	seedListing(t, g, 11, 7)
	repo := NewChatRepo(g)

	first := &models.Chat{ListingID: 11, BuyerID: 3, SellerID: 7}
	created, err := repo.CreateChat(ctx, first)
	req.NoError(err)
	req.True(created)
	req.NotZero(first.ID)

	second := &models.Chat{ListingID: 11, BuyerID: 3, SellerID: 7}
	created, err = repo.CreateChat(ctx, second)
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)

	var count int64
	req.NoError(g.DB.Model(&models.Chat{}).Count(&count).Error)
	req.Equal(int64(1), count)
}

func TestChatRepo_FindChat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g := newTestDB(t)
	seedUser(t, g, 3, "buyer3")
	seedUser(t, g, 7, "seller7")
	seedListing(t, g, 11, 7)
	repo := NewChatRepo(g)

	chat := &models.Chat{Model: models.Model{ID: 42}, ListingID: 11, BuyerID: 3, SellerID: 7}
	_, err := repo.CreateChat(ctx, chat)
	req.NoError(err)

	details, err := repo.FindChatWithDetails(ctx, 42)
	req.NoError(err)
	req.Equal("buyer3", details.Buyer.Username)
	req.Equal("seller7", details.Seller.Username)
	req.Equal("Calculus textbook", details.Listing.Title)

	_, err = repo.FindChatByID(ctx, 43)
	req.True(errors.Is(err, gorm.ErrRecordNotFound))
}

func TestChatRepo_ListChatsForUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g := newTestDB(t)
	seedUser(t, g, 3, "buyer3")
	seedUser(t, g, 7, "seller7")
	seedUser(t, g, 9, "user9")
	seedListing(t, g, 11, 7)
	seedListing(t, g, 12, 3)
	repo := NewChatRepo(g)

	_, err := repo.CreateChat(ctx, &models.Chat{ListingID: 11, BuyerID: 3, SellerID: 7})
	req.NoError(err)
	_, err = repo.CreateChat(ctx, &models.Chat{ListingID: 12, BuyerID: 7, SellerID: 3})
	req.NoError(err)

	for userID, want := range map[uint]int{3: 2, 7: 2, 9: 0} {
		chats, err := repo.ListChatsForUser(ctx, userID)
		req.NoError(err)
		req.Len(chats, want, "user %d", userID)
	}
}

func seedMessages(t *testing.T, repo ChatRepository, chatID, senderID uint, n int) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, repo.CreateMessage(context.Background(), &models.Message{
			ChatID:    chatID,
			SenderID:  senderID,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestChatRepo_RecentMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g := newTestDB(t)
	seedUser(t, g, 3, "buyer3")
	seedUser(t, g, 7, "seller7")
	seedListing(t, g, 11, 7)
	repo := NewChatRepo(g)
	chat := &models.Chat{ListingID: 11, BuyerID: 3, SellerID: 7}
	_, err := repo.CreateChat(ctx, chat)
	req.NoError(err)

	empty, err := repo.RecentMessages(ctx, chat.ID, 50)
	req.NoError(err)
	req.Empty(empty)

	seedMessages(t, repo, chat.ID, 3, 60)

	messages, err := repo.RecentMessages(ctx, chat.ID, 50)
	req.NoError(err)
	req.Len(messages, 50)
	req.Equal("message 60", messages[0].Content)
	req.Equal("message 11", messages[49].Content)
	req.Equal("buyer3", messages[0].Sender.Username)
}

func TestChatRepo_ListMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g := newTestDB(t)
	seedUser(t, g, 3, "buyer3")
	seedUser(t, g, 7, "seller7")
	seedListing(t, g, 11, 7)
	repo := NewChatRepo(g)
	chat := &models.Chat{ListingID: 11, BuyerID: 3, SellerID: 7}
	_, err := repo.CreateChat(ctx, chat)
	req.NoError(err)
	seedMessages(t, repo, chat.ID, 7, 25)

	page, total, err := repo.ListMessages(ctx, chat.ID, 10, 10)
	req.NoError(err)
	req.Equal(int64(25), total)
	req.Len(page, 10)
	req.Equal("message 15", page[0].Content)
	req.Equal("message 6", page[9].Content)

	last, _, err := repo.ListMessages(ctx, chat.ID, 20, 10)
	req.NoError(err)
	req.Len(last, 5)
}
