package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type JWT struct {
	secretKey     []byte
	expireSeconds int64
}

type Claims struct {
	IdentityID   string `json:"id"`
	TokenVersion int    `json:"version"`
	jwt.RegisteredClaims
}

func NewJWT(secretKey []byte, expireSeconds int64) *JWT {
	return &JWT{
		secretKey:     secretKey,
		expireSeconds: expireSeconds,
	}
}

func (j *JWT) GenerateToken(identityID string, tokenVersion int) (string, error) {
	claims := &Claims{
		IdentityID:   identityID,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Second * time.Duration(j.expireSeconds))),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

func (j *JWT) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
