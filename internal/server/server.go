// Package server exposes the survey over HTTP for the browser UI: session
// join, manifest and content reads, pair scheduling, and the vote log.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/caretext/arena-cli/internal/manifest"
	"github.com/caretext/arena-cli/internal/session"
	"github.com/caretext/arena-cli/internal/store"
	"github.com/caretext/arena-cli/internal/tournament"
)

// Deps carries everything the HTTP layer needs. All fields are required.
type Deps struct {
	Store       store.Store
	Manifest    *manifest.Manifest
	Content     *manifest.ContentStore
	Tokens      *session.Tokens
	Gate        *session.Gate
	Scheduler   *tournament.Scheduler
	TieBreaker  *tournament.TieBreaker
	CORSOrigins []string
}

type Server struct {
	store    store.Store
	manifest *manifest.Manifest
	content  *manifest.ContentStore
	tokens   *session.Tokens
	gate     *session.Gate
	sched    *tournament.Scheduler
	ties     *tournament.TieBreaker
	cors     []string
}

func New(d Deps) *Server {
	return &Server{
		store:    d.Store,
		manifest: d.Manifest,
		content:  d.Content,
		tokens:   d.Tokens,
		gate:     d.Gate,
		sched:    d.Scheduler,
		ties:     d.TieBreaker,
		cors:     d.CORSOrigins,
	}
}

// Router builds the chi mux. The session join and health check are open;
// everything else requires a bearer token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cors,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/session", s.handleJoin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/api/manifest", s.handleManifest)
		r.Get("/api/components/{component}/methods", s.handleEligibleMethods)
		r.Get("/api/components/{component}/pair", s.handleNextPair)
		r.Get("/api/content/{method}/{component}", s.handleContent)
		r.Post("/api/votes", s.handleSubmitVote)
		r.Post("/api/votes/sync", s.handleSyncVotes)
		r.Get("/api/votes", s.handleListVotes)
		r.Put("/api/profile", s.handleUpsertProfile)
		r.Get("/api/profile", s.handleGetProfile)
	})

	return r
}
