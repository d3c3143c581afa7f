package session

import (
	"crypto/subtle"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

var (
	ErrBadAccessCode   = eris.New("session: access code not recognized")
	ErrJoinRateLimited = eris.New("session: too many join attempts")
)

// Gate admits join requests. Access codes are compared in constant time and
// every attempt, good or bad, draws from a shared rate limit so the code
// space cannot be probed.
type Gate struct {
	codes   [][]byte
	limiter *rate.Limiter
}

// NewGate builds a gate over the configured access codes, allowing perMinute
// sustained join attempts with the given burst.
func NewGate(codes []string, perMinute, burst int) *Gate {
	g := &Gate{
		codes:   make([][]byte, 0, len(codes)),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
	for _, c := range codes {
		g.codes = append(g.codes, []byte(c))
	}
	return g
}

// Admit returns nil when the code is valid, ErrJoinRateLimited when the
// attempt budget is exhausted, and ErrBadAccessCode otherwise.
func (g *Gate) Admit(code string) error {
	if !g.limiter.Allow() {
		return ErrJoinRateLimited
	}

	raw := []byte(code)
	ok := false
	for _, c := range g.codes {
		if subtle.ConstantTimeCompare(c, raw) == 1 {
			ok = true
		}
	}
	if !ok {
		return ErrBadAccessCode
	}
	return nil
}
