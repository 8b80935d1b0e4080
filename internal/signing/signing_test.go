package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSigner([]byte("topsecret")).WithClock(func() time.Time { return now })

	token, err := s.Sign("file123", time.Minute)
	require.NoError(t, err)

	fileID, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "file123", fileID)

	other := NewSigner([]byte("another")).WithClock(func() time.Time { return now })
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalid)

	now = now.Add(2 * time.Minute)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalid)
}
