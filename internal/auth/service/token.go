package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/toolhub/internal/auth/domain"
)

const tokenIssuer = "toolhub"

type accessClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

type tokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func (t tokenSigner) sign(userID, sessionID snowflake.ID, email string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)
	claims := &accessClaims{
		SessionID: sessionID.String(),
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (t tokenSigner) parse(raw string, now time.Time) (*domain.Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	sessionID, err := snowflake.ParseString(claims.SessionID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	out := &domain.Claims{
		UserID:    snowflake.ID(userID),
		SessionID: sessionID,
		Email:     claims.Email,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
