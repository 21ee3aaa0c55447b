package telephony

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidStreamToken is returned when a media stream presents a bad token.
var ErrInvalidStreamToken = errors.New("telephony: invalid stream token")

const tokenIssuer = "phone-assistant"

// StreamClaims bind a media stream to the call the webhook answered.
type StreamClaims struct {
	CraftsmanID string `json:"craftsman_id"`
	PhoneNumber string `json:"phone_number"`
	CallSid     string `json:"call_sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 stream tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(craftsmanID, phoneNumber, callSid string) (string, error) {
	now := t.now()
	claims := StreamClaims{
		CraftsmanID: craftsmanID,
		PhoneNumber: phoneNumber,
		CallSid:     callSid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   callSid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign stream token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) Verify(token string) (*StreamClaims, error) {
	claims := &StreamClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStreamToken, err)
	}
	return claims, nil
}
