package db

import (
	"context"

	"github.com/campuslink/campus/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=../mocks/listing_repository_mock.go -package=mocks github.com/campuslink/campus/db ListingRepository

// ListingRepository is the read side of listings needed by chats
type ListingRepository interface {
	FindListingByID(ctx context.Context, id uint) (*models.Listing, error)
}

type listingRepo struct {
	DB *gorm.DB
}

func NewListingRepo(db *GormDB) ListingRepository {
	return &listingRepo{db.DB}
}

func (r *listingRepo) FindListingByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := r.DB.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find listing %d", id)
	}
	return &listing, nil
}
