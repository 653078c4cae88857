package userstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEpisode(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ep, err := NewEpisode("e1", "u1", KindFrustration, at)
	require.NoError(t, err)
	assert.Equal(t, KindFrustration, ep.Kind)
	assert.Equal(t, at, ep.OccurredAt)

	_, err = NewEpisode("", "u1", KindConfusion, at)
	assert.ErrorIs(t, err, ErrInvalidEpisode)

	_, err = NewEpisode("e1", "", KindConfusion, at)
	assert.ErrorIs(t, err, ErrInvalidEpisode)

	_, err = NewEpisode("e1", "u1", Kind("boredom"), at)
	assert.ErrorIs(t, err, ErrInvalidEpisode)
}
