package models

import (
	"errors"
	"time"

	goval "github.com/go-passwd/validator"
	"golang.org/x/crypto/bcrypt"
)

// User is an account holder. Accounts are created elsewhere; this service
// reads them for identity and drives verification and password reset.
type User struct {
	Model
	Name                   string     `json:"name"`
	Username               string     `json:"username" gorm:"uniqueIndex;not null"`
	Email                  string     `json:"email" gorm:"uniqueIndex;not null"`
	HashedPassword         string     `json:"-"`
	IsEmailVerified        bool       `json:"is_email_verified" gorm:"default:false"`
	EmailVerificationToken string     `json:"-" gorm:"index"`
	PasswordResetToken     string     `json:"-" gorm:"index"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	Year                   int        `json:"year" gorm:"default:1"`
	Bio                    string     `json:"bio"`
	Location               string     `json:"location"`
	ProfilePicture         string     `json:"profile_picture,omitempty"`
	DeviceToken            string     `json:"-"`
}

// DisplayName falls back to the username when no name was set
func (u *User) DisplayName() string {
	if u.Name == "" {
		return u.Username
	}
	return u.Name
}

// UserSummary is the public view of a user attached to chats and messages
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.DisplayName(),
	}
}

// VerifyPassword verifies the collected password with the user's hashed password
func (u *User) VerifyPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
}

func ValidatePassword(password string) error {
	passwordValidator := goval.New(goval.MinLength(6, errors.New("password cant be less than 6 characters")),
		goval.MaxLength(64, errors.New("password cant be more than 64 characters")))
	return passwordValidator.Validate(password)
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email" conform:"trim,lower"`
}

type ResetPassword struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}
