package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_AdmitValidCode(t *testing.T) {
	g := NewGate([]string{"maple", "cedar"}, 60, 10)

	assert.NoError(t, g.Admit("maple"))
	assert.NoError(t, g.Admit("cedar"))
}

func TestGate_RejectUnknownCode(t *testing.T) {
	g := NewGate([]string{"maple"}, 60, 10)

	err := g.Admit("oak")
	assert.ErrorIs(t, err, ErrBadAccessCode)
}

func TestGate_EmptyCodeList(t *testing.T) {
	g := NewGate(nil, 60, 10)

	err := g.Admit("anything")
	assert.ErrorIs(t, err, ErrBadAccessCode)
}

func TestGate_RateLimitExhausts(t *testing.T) {
	// Refill is ~1 token/minute, so only the burst is spendable here.
	g := NewGate([]string{"maple"}, 1, 2)

	require.NoError(t, g.Admit("maple"))
	require.NoError(t, g.Admit("maple"))

	err := g.Admit("maple")
	assert.ErrorIs(t, err, ErrJoinRateLimited)
}

func TestGate_RateLimitCountsBadAttempts(t *testing.T) {
	g := NewGate([]string{"maple"}, 1, 1)

	err := g.Admit("wrong")
	assert.ErrorIs(t, err, ErrBadAccessCode)

	err = g.Admit("maple")
	assert.ErrorIs(t, err, ErrJoinRateLimited)
}
