package tournament

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/caretext/arena-cli/internal/detrand"
	"github.com/caretext/arena-cli/internal/model"
)

// Pair is the next matchup to present: champion on the left, challenger on
// the right (except the opening pair, where both come from the seeded
// shuffle).
type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Scheduler runs a single-elimination tournament per participant and
// component. It holds no state of its own: every call re-derives the
// champion and the remaining challengers from the history it is handed, so a
// participant can resume from any device that can fetch their votes.
type Scheduler struct {
	ties *TieBreaker
}

// NewScheduler returns a Scheduler that resolves historical ties with the
// given TieBreaker.
func NewScheduler(ties *TieBreaker) *Scheduler {
	return &Scheduler{ties: ties}
}

// NextPair computes the next two methods to compare, or nil when there is
// nothing to show — either the input is insufficient (no participant, fewer
// than two eligible methods) or every eligible method has already faced the
// champion. Callers that need to tell those apart check len(eligible) before
// calling.
//
// With no prior rows the opening pair is the first two entries of a shuffle
// seeded by participant+component. Afterwards the winner of the latest trial
// defends as champion against a challenger drawn from the methods that have
// not yet appeared; the draw is seeded by how many methods have been seen, so
// the same history always yields the same pick. A full tournament over N
// eligible methods is exactly N-1 trials.
func (s *Scheduler) NextPair(participantID, component string, eligible []string, history []model.Vote) *Pair {
	if participantID == "" || len(eligible) < 2 {
		return nil
	}
	rows := componentRows(participantID, component, history)
	if len(rows) == 0 {
		order := detrand.Shuffle(eligible, participantID+component)
		return &Pair{Left: order[0], Right: order[1]}
	}

	last := rows[len(rows)-1]
	champion := s.championOf(last)

	appeared := make(map[string]bool, 2*len(rows))
	for _, v := range rows {
		appeared[v.LeftMethodID] = true
		appeared[v.RightMethodID] = true
	}
	var unseen []string
	for _, id := range eligible {
		if !appeared[id] && id != champion {
			unseen = append(unseen, id)
		}
	}
	if len(unseen) == 0 {
		return nil
	}

	seed := fmt.Sprintf("%s::%s::%d", participantID, component, len(appeared))
	challenger := unseen[detrand.FromString(seed).Intn(len(unseen))]
	return &Pair{Left: champion, Right: challenger}
}

// Champion returns the method currently defending the title for one
// participant and component, or "" before any trial has been recorded. It is
// the same derivation NextPair uses, exposed for progress reporting.
func (s *Scheduler) Champion(participantID, component string, history []model.Vote) string {
	rows := componentRows(participantID, component, history)
	if len(rows) == 0 {
		return ""
	}
	return s.championOf(rows[len(rows)-1])
}

// championOf derives the winner of the most recent trial: the stored resolved
// side when present, otherwise the raw preference, with ties resolved against
// the row's own identifiers. A row where neither field is interpretable
// defaults to the left method so scheduling stays available over malformed
// history; that path is logged because it can mask corrupted data.
func (s *Scheduler) championOf(last model.Vote) string {
	if side, err := model.ParseSide(string(last.ResolvedPreferred)); err == nil {
		return methodOn(last, side)
	}
	pref, err := model.ParsePreference(string(last.Preferred))
	if err != nil {
		zap.L().Warn("unparseable trial outcome, defaulting to left method",
			zap.String("participant_id", last.ParticipantID),
			zap.String("component", last.Component),
			zap.Int("trial_id", last.TrialID),
			zap.String("preferred", string(last.Preferred)),
			zap.String("resolved_preferred", string(last.ResolvedPreferred)))
		return last.LeftMethodID
	}
	switch pref {
	case model.PreferenceLeft:
		return last.LeftMethodID
	case model.PreferenceRight:
		return last.RightMethodID
	default:
		return methodOn(last, s.ties.Resolve(last.ParticipantID, last.Component, last.TrialID, last.LeftMethodID, last.RightMethodID))
	}
}

func methodOn(v model.Vote, side model.Side) string {
	if side == model.SideRight {
		return v.RightMethodID
	}
	return v.LeftMethodID
}

// componentRows filters history down to one participant's rows for one
// component, ordered by trial.
func componentRows(participantID, component string, history []model.Vote) []model.Vote {
	var rows []model.Vote
	for _, v := range history {
		if v.ParticipantID == participantID && v.Component == component {
			rows = append(rows, v)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TrialID < rows[j].TrialID })
	return rows
}
