package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campuslink/campus/config"
	"github.com/campuslink/campus/db"
	apiError "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/mailingservices"
	"github.com/campuslink/campus/models"
	"github.com/campuslink/campus/services/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const passwordResetTTL = time.Hour

// AuthService interface
type AuthService interface {
	// ResolveToken turns an access token into the account it was issued for.
	// It fails with ErrInvalidCredential or ErrUnknownSubject.
	ResolveToken(ctx context.Context, token string) (*models.User, error)
	SendVerificationEmail(ctx context.Context, email string) *apiError.Error
	VerifyEmail(ctx context.Context, token string) *apiError.Error
	SendEmailForPasswordReset(ctx context.Context, email string) *apiError.Error
	ResetPassword(ctx context.Context, token string, request *models.ResetPassword) *apiError.Error
}

// authService struct
type authService struct {
	Config   *config.Config
	authRepo db.AuthRepository
	mail     mailingservices.Mailer
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService instantiate an authService
func NewAuthService(authRepo db.AuthRepository, mail mailingservices.Mailer, conf *config.Config, log *zap.Logger) AuthService {
	return &authService{
		Config:   conf,
		authRepo: authRepo,
		mail:     mail,
		log:      log.Named("auth"),
		now:      time.Now,
	}
}

func (a *authService) ResolveToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := jwt.UserIDFromToken(token, a.Config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apiError.ErrInvalidCredential, err)
	}

	user, err := a.authRepo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", apiError.ErrUnknownSubject, userID)
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return user, nil
}

func (a *authService) SendVerificationEmail(ctx context.Context, email string) *apiError.Error {
	user, err := a.authRepo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apiError.New(apiError.ErrUserNotFound.Error(), http.StatusNotFound)
		}
		a.log.Error("find user for verification", zap.Error(err))
		return apiError.ErrInternalServerError
	}
	if user.IsEmailVerified {
		return apiError.New("email already verified", http.StatusBadRequest)
	}

	token := uuid.NewString()
	if err := a.authRepo.SetVerificationToken(ctx, user.ID, token); err != nil {
		a.log.Error("store verification token", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.ErrInternalServerError
	}

	link := fmt.Sprintf("%s/verify-email/%s", a.Config.FrontendURL, token)
	if _, err := a.mail.SendVerificationEmail(ctx, user.Email, user.DisplayName(), link); err != nil {
		a.log.Error("send verification email", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.New("connection to mail service interrupted", http.StatusInternalServerError)
	}
	return nil
}

func (a *authService) VerifyEmail(ctx context.Context, token string) *apiError.Error {
	if _, err := uuid.Parse(token); err != nil {
		return apiError.New(apiError.ErrInvalidToken.Error(), http.StatusBadRequest)
	}
	user, err := a.authRepo.FindUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apiError.New(apiError.ErrInvalidToken.Error(), http.StatusBadRequest)
		}
		a.log.Error("find user by verification token", zap.Error(err))
		return apiError.ErrInternalServerError
	}
	if err := a.authRepo.MarkEmailVerified(ctx, user.ID); err != nil {
		a.log.Error("mark email verified", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.ErrInternalServerError
	}
	return nil
}

// SendEmailForPasswordReset mails a one hour reset link. Unknown addresses
// succeed silently so the endpoint cannot be used to probe accounts.
func (a *authService) SendEmailForPasswordReset(ctx context.Context, email string) *apiError.Error {
	user, err := a.authRepo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			a.log.Info("password reset requested for unknown email")
			return nil
		}
		a.log.Error("find user for password reset", zap.Error(err))
		return apiError.ErrInternalServerError
	}

	token := uuid.NewString()
	if err := a.authRepo.SetPasswordResetToken(ctx, user.ID, token, a.now().Add(passwordResetTTL)); err != nil {
		a.log.Error("store reset token", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.ErrInternalServerError
	}

	link := fmt.Sprintf("%s/reset-password/%s", a.Config.FrontendURL, token)
	if _, err := a.mail.SendResetPassword(ctx, user.Email, user.DisplayName(), link); err != nil {
		a.log.Error("send reset email", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.New("connection to mail service interrupted", http.StatusInternalServerError)
	}
	return nil
}

func (a *authService) ResetPassword(ctx context.Context, token string, request *models.ResetPassword) *apiError.Error {
	if request.Password != request.ConfirmPassword {
		return apiError.ErrPasswordMismatch
	}
	if err := models.ValidatePassword(request.Password); err != nil {
		return apiError.New(err.Error(), http.StatusBadRequest)
	}
	if _, err := uuid.Parse(token); err != nil {
		return apiError.New(apiError.ErrInvalidToken.Error(), http.StatusBadRequest)
	}

	user, err := a.authRepo.FindUserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apiError.New(apiError.ErrInvalidToken.Error(), http.StatusBadRequest)
		}
		a.log.Error("find user by reset token", zap.Error(err))
		return apiError.ErrInternalServerError
	}
	if user.PasswordResetExpiresAt == nil || a.now().After(*user.PasswordResetExpiresAt) {
		return apiError.New(apiError.ErrInvalidToken.Error(), http.StatusBadRequest)
	}

	hashedPassword, err := GenerateHashPassword(request.Password)
	if err != nil {
		a.log.Error("hash password", zap.Error(err))
		return apiError.ErrInternalServerError
	}
	if err := a.authRepo.ResetPassword(ctx, user.ID, hashedPassword); err != nil {
		a.log.Error("reset password", zap.Uint("user_id", user.ID), zap.Error(err))
		return apiError.ErrInternalServerError
	}
	return nil
}

func GenerateHashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashedPassword), err
}
