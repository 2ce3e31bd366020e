// Package auth implements signup, password and OTP login, token refresh and
// logout on top of the storage layer. Tokens are HS256 JWTs; logout works by
// blacklisting the presented access token in Redis until it expires.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
	"unicode/utf8"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTP purposes. Each purpose has its own code and rate-limit keys, so a
// login code can never be spent on a password reset.
const (
	PurposeLogin = "login"
	PurposeReset = "reset"
)

const minPasswordLength = 8

// Mobile numbers are E.164 with an optional leading plus.
var mobileRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

var (
	ErrInvalidMobile       = errors.New("invalid mobile number")
	ErrWeakPassword        = errors.New("password must be at least 8 characters")
	ErrMobileTaken         = errors.New("mobile number already registered")
	ErrMobileNotRegistered = errors.New("mobile number not registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserInactive        = errors.New("user is inactive")
	ErrOTPExpired          = errors.New("otp expired or not found")
	ErrOTPInvalid          = errors.New("invalid otp")
	ErrOTPRateLimited      = errors.New("too many otp requests")
)

// OTPChallenge is a freshly issued one-time code. The code itself is
// returned to the caller because SMS delivery is mocked.
type OTPChallenge struct {
	Code      string
	ExpiresIn time.Duration
}

// LoginResult is either a token pair or, for two-factor accounts, an OTP
// challenge to be completed via VerifyLogin.
type LoginResult struct {
	User   *models.User
	Tokens *TokenPair
	OTP    *OTPChallenge
}

// OTPOptions tunes code generation and throttling.
type OTPOptions struct {
	Length      int           // digits per code, default 6
	TTL         time.Duration // code lifetime, default 5m
	RateLimit   int           // max codes per mobile per window, default 5
	RateWindow  time.Duration // rolling window for RateLimit, default 1h
	MaxAttempts int           // failed verifies before the code is burned, default 3
}

func (o *OTPOptions) normalize() {
	if o.Length <= 0 {
		o.Length = 6
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Hour
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
}

// Service is the authentication service.
type Service struct {
	store  storage.Storage
	tokens *TokenManager
	log    *logger.Logger
	otp    OTPOptions
}

// NewService Constructor
func NewService(store storage.Storage, tokens *TokenManager, log *logger.Logger, otp OTPOptions) *Service {
	otp.normalize()
	return &Service{store: store, tokens: tokens, log: log, otp: otp}
}

// Signup registers a new account with a bcrypt-hashed password.
func (s *Service) Signup(mobile, password, fullName, email string) (*models.User, error) {
	if !mobileRe.MatchString(mobile) {
		return nil, ErrInvalidMobile
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		MobileNumber: mobile,
		PasswordHash: hash,
		FullName:     fullName,
		Email:        email,
		IsActive:     true,
	}
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrMobileTaken
		}
		return nil, err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the password and either returns a token pair or, when the
// account has two-factor enabled, issues a login OTP to be verified with
// VerifyLogin. Unknown mobiles and wrong passwords are indistinguishable.
func (s *Service) Login(mobile, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByMobile(mobile)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if user.TwoFactorEnabled {
		challenge, err := s.issueOTP(PurposeLogin, mobile)
		if err != nil {
			return nil, err
		}
		return &LoginResult{User: user, OTP: challenge}, nil
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

// VerifyLogin completes a two-factor login by consuming the OTP.
func (s *Service) VerifyLogin(mobile, code string) (*models.User, *TokenPair, error) {
	if err := s.VerifyOTP(PurposeLogin, mobile, code); err != nil {
		return nil, nil, err
	}

	user, err := s.store.GetUserByMobile(mobile)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrMobileNotRegistered
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// ForgotPassword issues a reset-purpose OTP for a registered mobile.
func (s *Service) ForgotPassword(mobile string) (*OTPChallenge, error) {
	if _, err := s.store.GetUserByMobile(mobile); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMobileNotRegistered
		}
		return nil, err
	}
	return s.issueOTP(PurposeReset, mobile)
}

// ResetPassword consumes a reset OTP and sets the new password.
func (s *Service) ResetPassword(mobile, code, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	if err := s.VerifyOTP(PurposeReset, mobile, code); err != nil {
		return err
	}

	user, err := s.store.GetUserByMobile(mobile)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMobileNotRegistered
	}
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.store.UpdateUser(user); err != nil {
		return err
	}

	s.log.Info("password reset", "user_id", user.ID)
	return nil
}

// ChangePassword verifies the old password before setting the new one.
func (s *Service) ChangePassword(userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if utf8.RuneCountInString(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.store.UpdateUser(user); err != nil {
		return err
	}

	s.log.Info("password changed", "user_id", user.ID)
	return nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(refreshToken string) (string, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Type != TokenTypeRefresh {
		return "", ErrInvalidToken
	}
	return s.tokens.IssueAccess(claims.UserID)
}

// Logout blacklists the presented access token for its remaining lifetime.
// An already expired token is a no-op.
func (s *Service) Logout(token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return ErrInvalidToken
	}

	remaining := claims.Remaining()
	if remaining <= 0 {
		return nil
	}
	return s.store.BlacklistToken(token, remaining)
}

// Authenticate validates an access token for request middleware and returns
// the user ID it was issued to. Blacklisted tokens read as invalid.
func (s *Service) Authenticate(token string) (uuid.UUID, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return uuid.Nil, ErrInvalidToken
	}

	blacklisted, err := s.store.IsTokenBlacklisted(token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check token blacklist: %w", err)
	}
	if blacklisted {
		return uuid.Nil, ErrInvalidToken
	}
	return claims.UserID, nil
}

// VerifyOTP consumes the stored code for the purpose. A matching code is
// single-use; too many mismatches burn the code entirely.
func (s *Service) VerifyOTP(purpose, mobile, code string) error {
	stored, err := s.store.GetOTP(purpose, mobile)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrOTPExpired
	}
	if err != nil {
		return err
	}

	if stored != code {
		// The attempt counter lives as long as the code itself.
		attempts, rateErr := s.store.IncrementOTPRate(attemptsPurpose(purpose), mobile, s.otp.TTL)
		if rateErr != nil {
			s.log.Warn("failed to count otp attempt", "mobile", mobile, "error", rateErr)
		}
		if attempts >= int64(s.otp.MaxAttempts) {
			if delErr := s.store.DeleteOTP(purpose, mobile); delErr != nil {
				s.log.Warn("failed to burn otp", "mobile", mobile, "error", delErr)
			}
		}
		return ErrOTPInvalid
	}

	return s.store.DeleteOTP(purpose, mobile)
}

func (s *Service) issueOTP(purpose, mobile string) (*OTPChallenge, error) {
	rate, err := s.store.GetOTPRate(purpose, mobile)
	if err != nil {
		return nil, err
	}
	if rate >= int64(s.otp.RateLimit) {
		return nil, ErrOTPRateLimited
	}

	code, err := generateOTP(s.otp.Length)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.StoreOTP(purpose, mobile, code, s.otp.TTL); err != nil {
		return nil, err
	}
	if _, err := s.store.IncrementOTPRate(purpose, mobile, s.otp.RateWindow); err != nil {
		return nil, err
	}

	s.log.Info("otp issued", "purpose", purpose, "mobile", mobile)
	return &OTPChallenge{Code: code, ExpiresIn: s.otp.TTL}, nil
}

func attemptsPurpose(purpose string) string {
	return purpose + ":attempts"
}

// generateOTP returns length crypto-random decimal digits.
func generateOTP(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
