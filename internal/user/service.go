package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrBadUsername  = errors.New("username must not be blank")
)

const tokenTTL = 24 * time.Hour

type Service struct {
	jwtSecret string
	now       func() time.Time
}

type GuestClaims struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func NewService(secret string) *Service {
	return &Service{jwtSecret: secret, now: time.Now}
}

// Join issues a guest token for a room, minting a fresh session id when
// none is given.
func (s *Service) Join(req *JoinRequest) (*JoinResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrBadUsername
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, GuestClaims{
		Username:  username,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "polyglot-chat",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &JoinResponse{
		AccessToken: ss,
		Username:    username,
		SessionID:   sessionID,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &GuestClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))

	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Username == "" || claims.SessionID == "" {
		return "", "", ErrInvalidToken
	}

	return claims.Username, claims.SessionID, nil
}
