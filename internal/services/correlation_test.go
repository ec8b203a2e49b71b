package services

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipjar/broker/internal/models"
)

func TestCorrelation_RoundTrip(t *testing.T) {
	s := NewCorrelationSigner("secret", time.Minute)

	id, err := s.Issue("donator-conn", "streamer-1")
	require.NoError(t, err)

	claims, err := s.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "donator-conn", claims.DonatorHandle)
	assert.Equal(t, "streamer-1", claims.StreamerID)
	assert.NotEmpty(t, claims.ID)
}

func TestCorrelation_IDsAreUnique(t *testing.T) {
	s := NewCorrelationSigner("secret", time.Minute)

	a, err := s.Issue("d", "s")
	require.NoError(t, err)
	b, err := s.Issue("d", "s")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCorrelation_RejectsTampering(t *testing.T) {
	s := NewCorrelationSigner("secret", time.Minute)
	id, err := s.Issue("d", "s")
	require.NoError(t, err)

	parts := strings.Split(id, ".")
	require.Len(t, parts, 3)
	forged, err := NewCorrelationSigner("other", time.Minute).Issue("attacker", "s")
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")

	cases := map[string]string{
		"garbage":         "not-a-token",
		"empty":           "",
		"wrong secret":    forged,
		"swapped payload": parts[0] + "." + forgedParts[1] + "." + parts[2],
		"truncated":       parts[0] + "." + parts[1],
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Parse(token)
			assert.ErrorIs(t, err, models.ErrInvalidRequestID)
		})
	}
}

func TestCorrelation_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewCorrelationSigner("secret", time.Minute)
	s.clock = clock

	id, err := s.Issue("d", "s")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = s.Parse(id)
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	_, err = s.Parse(id)
	assert.ErrorIs(t, err, models.ErrInvalidRequestID)
}
