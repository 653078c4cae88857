package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Update(t *testing.T) {
	p := DefaultParams()

	// correct: post = 0.2*0.9 / (0.18 + 0.8*0.2) = 0.18/0.34
	post := 0.18 / 0.34
	assert.InDelta(t, post+(1-post)*0.15, p.Update(0.2, true), 1e-9)

	// wrong: post = 0.2*0.1 / (0.02 + 0.8*0.8) = 0.02/0.66
	post = 0.02 / 0.66
	assert.InDelta(t, post+(1-post)*0.15, p.Update(0.2, false), 1e-9)
}

func TestParams_UpdateDirection(t *testing.T) {
	p := DefaultParams()
	prior := 0.5

	assert.Greater(t, p.Update(prior, true), prior)
	assert.Less(t, p.Update(prior, false), p.Update(prior, true))
}

func TestParams_UpdateStaysInRange(t *testing.T) {
	p := DefaultParams()
	for _, prior := range []float64{-1, 0, 0.3, 1, 2} {
		for _, correct := range []bool{true, false} {
			v := p.Update(prior, correct)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.PSlip = 1.5
	assert.Error(t, bad.Validate())

	degenerate := DefaultParams()
	degenerate.PSlip = 0.5
	degenerate.PGuess = 0.5
	assert.Error(t, degenerate.Validate())
}

func TestState_Apply(t *testing.T) {
	params := DefaultParams()
	s, err := NewState("u1", "loops", params)
	require.NoError(t, err)
	assert.Equal(t, params.PInit, s.PKnown)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		s.Apply(params, true, at)
	}

	assert.Equal(t, 20, s.Attempts)
	assert.Equal(t, 20, s.CorrectCount)
	assert.Equal(t, 1.0, s.Accuracy())
	assert.True(t, s.IsMastered())
	assert.Equal(t, at, s.UpdatedAt)
}

func TestNewState_Validation(t *testing.T) {
	_, err := NewState("", "loops", DefaultParams())
	assert.ErrorIs(t, err, ErrEmptyParticipant)

	_, err = NewState("u1", " ", DefaultParams())
	assert.ErrorIs(t, err, ErrEmptyTopic)
}
