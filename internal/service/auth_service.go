package service

import (
	"crypto/subtle"
	"errors"
	"time"

	"codementor/internal/ident"
	"codementor/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService exchanges the shared mentor secret for admin API tokens
type AuthService struct {
	mentorSecret []byte
	jwtSecret    []byte
	tokenTTL     time.Duration
	now          func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(mentorSecret, jwtSecret string) *AuthService {
	return &AuthService{
		mentorSecret: []byte(mentorSecret),
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     12 * time.Hour,
		now:          time.Now,
	}
}

// CheckSecret compares secret with the mentor secret in constant time
func (s *AuthService) CheckSecret(secret string) bool {
	return len(s.mentorSecret) > 0 && subtle.ConstantTimeCompare([]byte(secret), s.mentorSecret) == 1
}

// Login validates the secret and returns a signed token
func (s *AuthService) Login(secret string) (*model.LoginResponse, error) {
	if !s.CheckSecret(secret) {
		return nil, ErrUnauthorized
	}

	mentorID := ident.NewMentorID()
	now := s.now()
	claims := &model.MentorClaims{
		MentorID: mentorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:    tokenString,
		MentorID: mentorID,
	}, nil
}

// ValidateMentorToken validates a mentor JWT and returns claims
func (s *AuthService) ValidateMentorToken(tokenString string) (*model.MentorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.MentorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.MentorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
