package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tipjar/broker/internal/models"
)

const correlationIssuer = "tipjar-broker"

// CorrelationClaims is what a requestId carries: where the answer goes and
// which streamer may give it.
type CorrelationClaims struct {
	DonatorHandle string `json:"dh"`
	StreamerID    string `json:"sid"`
	jwt.RegisteredClaims
}

// CorrelationSigner issues and verifies requestIds as HS256 tokens.
type CorrelationSigner struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewCorrelationSigner(secret string, ttl time.Duration) *CorrelationSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CorrelationSigner{secret: []byte(secret), ttl: ttl, clock: clockwork.NewRealClock()}
}

func (s *CorrelationSigner) Issue(donatorHandle, streamerID string) (string, error) {
	now := s.clock.Now()
	claims := CorrelationClaims{
		DonatorHandle: donatorHandle,
		StreamerID:    streamerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    correlationIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign request id: %w", err)
	}
	return signed, nil
}

func (s *CorrelationSigner) Parse(requestID string) (*CorrelationClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(correlationIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	token, err := parser.ParseWithClaims(requestID, &CorrelationClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequestID, err)
	}
	claims, ok := token.Claims.(*CorrelationClaims)
	if !ok || !token.Valid || claims.DonatorHandle == "" || claims.StreamerID == "" {
		return nil, models.ErrInvalidRequestID
	}
	return claims, nil
}
