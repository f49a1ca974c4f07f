package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidNickname = errors.New("nickname must be 1-20 characters")
	ErrInvalidTicket   = errors.New("invalid session ticket")
)

const maxNicknameLength = 20

// SessionService hands out signed tickets that bind a display name to a
// websocket connection. A ticket only proves which nickname the server
// assigned; there are no accounts behind it.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type sessionClaims struct {
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

func NewSessionService(secret string, ttl time.Duration) *SessionService {
	return &SessionService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NormalizeNickname trims nickname and checks its length.
func NormalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return "", ErrInvalidNickname
	}
	return nickname, nil
}

// IssueTicket returns a ticket for nickname and the normalized nickname it
// carries.
func (s *SessionService) IssueTicket(nickname string) (string, string, error) {
	nickname, err := NormalizeNickname(nickname)
	if err != nil {
		return "", "", err
	}

	now := s.now()
	claims := sessionClaims{
		Nickname: nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	ticket, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign ticket: %w", err)
	}
	return ticket, nickname, nil
}

// ParseTicket validates ticket and returns the nickname it carries.
func (s *SessionService) ParseTicket(ticket string) (string, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(ticket, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidTicket
	}
	if _, err := NormalizeNickname(claims.Nickname); err != nil {
		return "", ErrInvalidTicket
	}
	return claims.Nickname, nil
}
