package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caretext/arena-cli/internal/history"
	"github.com/caretext/arena-cli/internal/model"
	"github.com/caretext/arena-cli/internal/session"
	"github.com/caretext/arena-cli/internal/store"
)

type joinRequest struct {
	AccessCode    string `json:"access_code"`
	ParticipantID string `json:"participant_id,omitempty"`
}

type joinResponse struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

type voteRequest struct {
	Component        string     `json:"component"`
	TrialID          int        `json:"trial_id"`
	LeftMethodID     string     `json:"left_method_id"`
	RightMethodID    string     `json:"right_method_id"`
	Preferred        string     `json:"preferred"`
	Feedback         string     `json:"feedback,omitempty"`
	ClientRecordedAt *time.Time `json:"client_recorded_at,omitempty"`
}

type syncRequest struct {
	Votes []model.Vote `json:"votes"`
}

type manifestMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJoin admits a participant into the study. A request without a
// participant id enrolls a new one; with an id it resumes that participant
// on a fresh token, e.g. from a second device or after expiry.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.gate.Admit(req.AccessCode); err != nil {
		if errors.Is(err, session.ErrJoinRateLimited) {
			writeError(w, http.StatusTooManyRequests, "too many join attempts")
			return
		}
		writeError(w, http.StatusUnauthorized, "access code not recognized")
		return
	}

	var participant *model.Participant
	if req.ParticipantID != "" {
		existing, err := s.store.GetParticipant(r.Context(), req.ParticipantID)
		if err != nil {
			zap.L().Error("get participant", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "look up participant")
			return
		}
		if existing == nil {
			writeError(w, http.StatusUnauthorized, "unknown participant id")
			return
		}
		participant = existing
	} else {
		created, err := s.store.CreateParticipant(r.Context())
		if err != nil {
			zap.L().Error("create participant", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "register participant")
			return
		}
		participant = created
	}

	token, err := s.tokens.Issue(participant.ID)
	if err != nil {
		zap.L().Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "issue session token")
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{ParticipantID: participant.ID, Token: token})
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	methods := make([]manifestMethod, 0, len(s.manifest.Methods))
	for _, m := range s.manifest.Methods {
		methods = append(methods, manifestMethod{ID: m.ID, Name: m.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"components": s.manifest.Components,
		"methods":    methods,
	})
}

func (s *Server) handleEligibleMethods(w http.ResponseWriter, r *http.Request) {
	component := chi.URLParam(r, "component")
	if !s.manifest.HasComponent(component) {
		writeError(w, http.StatusNotFound, "unknown component")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"component": component,
		"methods":   s.content.Eligible(component),
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	component := chi.URLParam(r, "component")

	content, ok := s.content.Content(method, component)
	if !ok {
		writeError(w, http.StatusNotFound, "no content for this method and component")
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleNextPair(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())
	component := chi.URLParam(r, "component")
	if !s.manifest.HasComponent(component) {
		writeError(w, http.StatusNotFound, "unknown component")
		return
	}

	votes, err := s.store.ListVotes(r.Context(), store.VoteFilter{
		ParticipantID: participantID,
		Component:     component,
	})
	if err != nil {
		zap.L().Error("list votes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load vote history")
		return
	}

	pair := s.sched.NextPair(participantID, component, s.content.Eligible(component), votes)
	if pair == nil {
		writeJSON(w, http.StatusOK, map[string]any{"complete": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"left":     pair.Left,
		"right":    pair.Right,
		"trial_id": len(votes) + 1,
	})
}

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())

	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.manifest.HasComponent(req.Component) {
		writeError(w, http.StatusBadRequest, "unknown component")
		return
	}

	pref, err := model.ParsePreference(req.Preferred)
	if err != nil {
		writeError(w, http.StatusBadRequest, "preferred must be left, right, or tie")
		return
	}

	votes, err := s.store.ListVotes(r.Context(), store.VoteFilter{
		ParticipantID: participantID,
		Component:     req.Component,
	})
	if err != nil {
		zap.L().Error("list votes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load vote history")
		return
	}
	// Resubmitting a past trial overwrites it; skipping ahead is rejected.
	if req.TrialID > len(votes)+1 {
		writeError(w, http.StatusConflict, "trial_id is ahead of the recorded history")
		return
	}

	vote := model.Vote{
		ID:               model.VoteID(participantID, req.Component, req.TrialID),
		ParticipantID:    participantID,
		Component:        req.Component,
		TrialID:          req.TrialID,
		LeftMethodID:     req.LeftMethodID,
		RightMethodID:    req.RightMethodID,
		Preferred:        pref,
		Feedback:         req.Feedback,
		ClientRecordedAt: req.ClientRecordedAt,
		SubmittedAt:      time.Now().UTC(),
	}
	if pref == model.PreferenceTie {
		vote.ResolvedPreferred = s.ties.Resolve(participantID, req.Component, req.TrialID,
			req.LeftMethodID, req.RightMethodID)
	}

	if err := vote.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpsertVote(r.Context(), vote); err != nil {
		zap.L().Error("upsert vote", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "record vote")
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

// handleSyncVotes reconciles a client's locally cached log with the server
// store. Server rows win collisions; rows only the client has are persisted.
// The response is the canonical merged log for this participant.
func (s *Server) handleSyncVotes(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())

	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	now := time.Now().UTC()
	for i := range req.Votes {
		v := &req.Votes[i]
		if v.ParticipantID != participantID {
			writeError(w, http.StatusForbidden, "vote log contains rows for another participant")
			return
		}
		v.ID = model.VoteID(v.ParticipantID, v.Component, v.TrialID)
		if v.SubmittedAt.IsZero() {
			v.SubmittedAt = now
		}
		// Client rows may carry label synonyms; the stored log is canonical.
		if err := v.Normalize(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := v.Validate(); err != nil {
			if errors.Is(err, model.ErrMissingResolution) {
				writeError(w, http.StatusBadRequest, "tie votes must carry a resolved side")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	serverVotes, err := s.store.ListVotes(r.Context(), store.VoteFilter{ParticipantID: participantID})
	if err != nil {
		zap.L().Error("list votes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load vote history")
		return
	}

	merged := history.Merge(req.Votes, serverVotes)

	known := make(map[string]bool, len(serverVotes))
	for _, v := range serverVotes {
		known[v.ID] = true
	}
	var missing []model.Vote
	for _, v := range merged {
		if !known[v.ID] {
			missing = append(missing, v)
		}
	}

	persisted, err := s.store.UpsertVotes(r.Context(), missing)
	if err != nil {
		zap.L().Error("persist synced votes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "persist synced votes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"votes":     merged,
		"persisted": persisted,
	})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())

	votes, err := s.store.ListVotes(r.Context(), store.VoteFilter{ParticipantID: participantID})
	if err != nil {
		zap.L().Error("list votes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load vote history")
		return
	}
	if votes == nil {
		votes = []model.Vote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes})
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())

	var profile model.Profile
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.UpsertProfile(r.Context(), participantID, profile); err != nil {
		zap.L().Error("upsert profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "save profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	participantID := participantFrom(r.Context())

	participant, err := s.store.GetParticipant(r.Context(), participantID)
	if err != nil {
		zap.L().Error("get participant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "look up participant")
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	profile := participant.Profile
	if profile == nil {
		profile = &model.Profile{}
	}
	writeJSON(w, http.StatusOK, profile)
}
