// Package server exposes the file manager over HTTP: the single page UI, the
// authenticated /api/ endpoints, and raw object downloads.
package server

import (
	"errors"

	"shelf/internal/auth"
	"shelf/internal/core"
	"shelf/internal/move"
	"shelf/internal/notify"
	"shelf/pkg/storage"
)

// Server holds the collaborators shared by all handlers. None of them carry
// per-request mutable state, so requests are served fully concurrently.
type Server struct {
	cfg    core.Config
	store  storage.ObjectStore
	engine *move.Engine
	auth   auth.AuthEngine
	events notify.Publisher
}

type Option func(*Server)

// WithStore sets the object store. It is required.
func WithStore(store storage.ObjectStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithAuthEngine replaces the default shared-secret authenticator.
func WithAuthEngine(engine auth.AuthEngine) Option {
	return func(s *Server) {
		s.auth = engine
	}
}

// WithPublisher sets where committed operations are announced.
func WithPublisher(events notify.Publisher) Option {
	return func(s *Server) {
		s.events = events
	}
}

// NewServer wires a Server from cfg and opts.
func NewServer(cfg core.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		return nil, errors.New("an object store is required")
	}
	if s.auth == nil {
		s.auth = auth.NewDefaultAuthEngine(cfg.Secret)
	}
	if s.events == nil {
		s.events = notify.Discard
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = core.DefaultMaxUploadBytes
	}
	if s.cfg.CacheControl == "" {
		s.cfg.CacheControl = core.DefaultCacheControl
	}

	s.engine = move.NewEngine(s.store, move.Config{
		Concurrency: cfg.Move.Concurrency,
		StepTimeout: cfg.Move.StepTimeout,
		PageSize:    cfg.Move.PageSize,
		Events:      s.events,
	})

	return s, nil
}
