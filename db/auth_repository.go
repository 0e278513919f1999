package db

import (
	"context"
	"time"

	"github.com/campuslink/campus/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=../mocks/auth_repository_mock.go -package=mocks github.com/campuslink/campus/db AuthRepository

type AuthRepository interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindUserByResetToken(ctx context.Context, token string) (*models.User, error)
	SetVerificationToken(ctx context.Context, userID uint, token string) error
	MarkEmailVerified(ctx context.Context, userID uint) error
	SetPasswordResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, userID uint, hashedPassword string) error
}

type authRepo struct {
	DB *gorm.DB
}

func NewAuthRepo(db *GormDB) AuthRepository {
	return &authRepo{db.DB}
}

// FindUserByID returns gorm.ErrRecordNotFound (possibly wrapped) when absent
func (a *authRepo) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := a.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find user %d", id)
	}
	return &user, nil
}

func (a *authRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := a.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, errors.Wrap(err, "find user by email")
	}
	return &user, nil
}

func (a *authRepo) FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := a.DB.WithContext(ctx).Where("email_verification_token = ?", token).First(&user).Error
	if err != nil {
		return nil, errors.Wrap(err, "find user by verification token")
	}
	return &user, nil
}

func (a *authRepo) FindUserByResetToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := a.DB.WithContext(ctx).Where("password_reset_token = ?", token).First(&user).Error
	if err != nil {
		return nil, errors.Wrap(err, "find user by reset token")
	}
	return &user, nil
}

func (a *authRepo) SetVerificationToken(ctx context.Context, userID uint, token string) error {
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("email_verification_token", token).Error
	return errors.Wrap(err, "set verification token")
}

func (a *authRepo) MarkEmailVerified(ctx context.Context, userID uint) error {
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_email_verified":        true,
			"email_verification_token": "",
		}).Error
	return errors.Wrap(err, "mark email verified")
}

func (a *authRepo) SetPasswordResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_reset_token":      token,
			"password_reset_expires_at": expiresAt,
		}).Error
	return errors.Wrap(err, "set password reset token")
}

// ResetPassword stores the new hash and burns the reset token
func (a *authRepo) ResetPassword(ctx context.Context, userID uint, hashedPassword string) error {
	err := a.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"hashed_password":           hashedPassword,
			"password_reset_token":      "",
			"password_reset_expires_at": nil,
		}).Error
	return errors.Wrap(err, "reset password")
}
