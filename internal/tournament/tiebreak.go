// Package tournament implements the champion-vs-challenger pairing logic: a
// tie-resolution policy and a scheduler that derives the next matchup for a
// participant and component from their vote history alone.
package tournament

import (
	"fmt"

	"github.com/caretext/arena-cli/internal/detrand"
	"github.com/caretext/arena-cli/internal/model"
)

// unfavoredRank is assigned to any method outside the favorites list. Two
// unfavored methods always tie on rank and fall through to the seeded draw.
const unfavoredRank = 999

// DefaultFavorites is the study's favored-method ordering, best first.
var DefaultFavorites = []string{"H", "I", "G"}

// TieBreaker converts a declared tie into a binding left/right outcome. The
// policy is an ordered favorites list: a favored method beats an unfavored
// one, a better-ranked favorite beats a worse-ranked one, and two unfavored
// methods are split by a draw seeded from the trial's identity. Resolve is
// total and deterministic, so replaying history resolves every past tie
// exactly the way the live vote did.
type TieBreaker struct {
	rank map[string]int
}

// NewTieBreaker builds a TieBreaker from an ordered favorites list. The first
// entry ranks best. A nil or empty list means every tie goes to the draw.
func NewTieBreaker(favorites []string) *TieBreaker {
	rank := make(map[string]int, len(favorites))
	for i, id := range favorites {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	return &TieBreaker{rank: rank}
}

// Resolve picks the winning side for a tied trial.
func (tb *TieBreaker) Resolve(participantID, component string, trialID int, leftID, rightID string) model.Side {
	left := tb.rankOf(leftID)
	right := tb.rankOf(rightID)
	if left < right {
		return model.SideLeft
	}
	if right < left {
		return model.SideRight
	}
	seed := fmt.Sprintf("%s::%s::%d::%s::%s", participantID, component, trialID, leftID, rightID)
	if detrand.FromString(seed).Float64() < 0.5 {
		return model.SideLeft
	}
	return model.SideRight
}

func (tb *TieBreaker) rankOf(methodID string) int {
	if r, ok := tb.rank[methodID]; ok {
		return r
	}
	return unfavoredRank
}
