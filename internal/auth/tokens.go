package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers expired, malformed, mis-signed and
	// wrong-type tokens alike. Callers must not leak the distinction.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenPair is the access + refresh token set handed out on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Claims is the decoded, validated content of one of our tokens.
type Claims struct {
	UserID    uuid.UUID
	Type      string
	ExpiresAt time.Time
}

// Remaining returns how long the token stays valid from now. Zero or
// negative means expired.
func (c *Claims) Remaining() time.Duration {
	return time.Until(c.ExpiresAt)
}

// TokenManager signs and verifies the HS256 tokens used by the API.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager Constructor
func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (m *TokenManager) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"type": tokenType,
		"iss":  m.issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// IssueAccess returns a signed access token for the user.
func (m *TokenManager) IssueAccess(userID uuid.UUID) (string, error) {
	return m.sign(userID, TokenTypeAccess, m.accessTTL)
}

// IssueRefresh returns a signed refresh token for the user.
func (m *TokenManager) IssueRefresh(userID uuid.UUID) (string, error) {
	return m.sign(userID, TokenTypeRefresh, m.refreshTTL)
}

// IssuePair returns a fresh access + refresh token pair.
func (m *TokenManager) IssuePair(userID uuid.UUID) (*TokenPair, error) {
	access, err := m.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Parse verifies the signature and expiry and returns the decoded claims.
// Any failure reads as ErrInvalidToken.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}
	tokenType, _ := mapClaims["type"].(string)
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{UserID: userID, Type: tokenType, ExpiresAt: exp.Time}, nil
}
