package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Preference is a participant's raw answer for one trial: which side they
// preferred, or a tie.
type Preference string

const (
	PreferenceLeft  Preference = "left"
	PreferenceRight Preference = "right"
	PreferenceTie   Preference = "tie"
)

// Side is a binding left/right outcome. Unlike Preference it can never be a
// tie, so a champion is always derivable from it.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ErrInvalidPreference is returned when a preference label is not one of the
// accepted synonyms. Unknown labels are rejected, never coerced.
var ErrInvalidPreference = eris.New("invalid preference")

// ErrMissingResolution is returned when a tie vote reaches the persistence
// boundary without a resolved side.
var ErrMissingResolution = eris.New("tie vote missing resolved side")

// ParsePreference normalizes a raw preference label. Synonyms are
// case-insensitive: "top" means left, "bottom" means right, and
// "none"/"no_preference"/"nopreference" mean tie.
func ParsePreference(raw string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "top":
		return PreferenceLeft, nil
	case "right", "bottom":
		return PreferenceRight, nil
	case "tie", "none", "no_preference", "nopreference":
		return PreferenceTie, nil
	}
	return "", eris.Wrapf(ErrInvalidPreference, "parse preference %q", raw)
}

// ParseSide normalizes a raw side label. Only left/top and right/bottom are
// accepted; a tie is not a side.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "top":
		return SideLeft, nil
	case "right", "bottom":
		return SideRight, nil
	}
	return "", eris.Wrapf(ErrInvalidPreference, "parse side %q", raw)
}

// Vote records one pairwise comparison trial. Votes are append-only: the same
// identity may be resubmitted (overwriting the stored row) but never deleted.
type Vote struct {
	ID                string     `json:"id"`
	ParticipantID     string     `json:"participant_id"`
	Component         string     `json:"component"`
	TrialID           int        `json:"trial_id"`
	LeftMethodID      string     `json:"left_method_id"`
	RightMethodID     string     `json:"right_method_id"`
	Preferred         Preference `json:"preferred"`
	ResolvedPreferred Side       `json:"resolved_preferred,omitempty"`
	Feedback          string     `json:"feedback,omitempty"`
	ClientRecordedAt  *time.Time `json:"client_recorded_at,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at,omitempty"`
}

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	voteIDStrip    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// VoteID derives the stable identity for a trial's vote. The component name
// is trimmed, whitespace runs collapse to single underscores, and any
// remaining character outside [A-Za-z0-9_-] is stripped, so e.g.
// ("P00001", "Action Space!", 4) yields "P00001__Action_Space__4".
func VoteID(participantID, component string, trialID int) string {
	c := strings.TrimSpace(component)
	c = whitespaceRuns.ReplaceAllString(c, "_")
	c = voteIDStrip.ReplaceAllString(c, "")
	return fmt.Sprintf("%s__%s__%d", participantID, c, trialID)
}

// WinnerMethodID maps the trial outcome back to the method that won: the
// resolved side when one is recorded, otherwise the preferred side. Empty for
// a tie that has not been resolved.
func (v Vote) WinnerMethodID() string {
	switch v.ResolvedPreferred {
	case SideLeft:
		return v.LeftMethodID
	case SideRight:
		return v.RightMethodID
	}
	switch v.Preferred {
	case PreferenceLeft:
		return v.LeftMethodID
	case PreferenceRight:
		return v.RightMethodID
	}
	return ""
}

// Normalize rewrites the preference labels into their canonical forms, so a
// synonym or casing variant ("TOP", "No_Preference") never reaches storage.
// Boundaries that accept raw client rows must call this before persisting;
// the stored log only ever holds left/right/tie.
func (v *Vote) Normalize() error {
	pref, err := ParsePreference(string(v.Preferred))
	if err != nil {
		return err
	}
	v.Preferred = pref

	if v.ResolvedPreferred != "" {
		side, err := ParseSide(string(v.ResolvedPreferred))
		if err != nil {
			return err
		}
		v.ResolvedPreferred = side
	}
	return nil
}

// Validate checks the boundary rules before a vote is persisted: distinct
// methods, a 1-based trial number, a recognizable preference, and — for tie
// votes — a resolved side.
func (v Vote) Validate() error {
	if strings.TrimSpace(v.ParticipantID) == "" {
		return eris.New("vote: participant id is required")
	}
	if strings.TrimSpace(v.Component) == "" {
		return eris.New("vote: component is required")
	}
	if v.TrialID < 1 {
		return eris.Errorf("vote: trial_id must be >= 1, got %d", v.TrialID)
	}
	if v.LeftMethodID == "" || v.RightMethodID == "" {
		return eris.New("vote: both method ids are required")
	}
	if v.LeftMethodID == v.RightMethodID {
		return eris.Errorf("vote: compared methods must differ, got %q on both sides", v.LeftMethodID)
	}
	pref, err := ParsePreference(string(v.Preferred))
	if err != nil {
		return err
	}
	if v.ResolvedPreferred != "" {
		if _, err := ParseSide(string(v.ResolvedPreferred)); err != nil {
			return err
		}
	}
	if pref == PreferenceTie && v.ResolvedPreferred == "" {
		return eris.Wrapf(ErrMissingResolution, "vote %s", VoteID(v.ParticipantID, v.Component, v.TrialID))
	}
	return nil
}
