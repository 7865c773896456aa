// Package server provides the public entry point for initializing the
// chatrelay server.
//
// This package exists in pkg/ (not internal/) so that deployment wrappers can
// import it and compose the relay with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/api"
	"github.com/chatrelay/chatrelay/internal/api/handlers"
	"github.com/chatrelay/chatrelay/internal/chatwoot"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/obs"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/relay"
	"github.com/chatrelay/chatrelay/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// logCapacity is the in-memory log buffer size held by the sink.
const logCapacity = 1000

// Server holds the initialized relay.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sink is the in-memory observability sink. Exposed so wrappers can
	// read metrics without going through HTTP.
	Sink *obs.Sink

	// Config is the loaded server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all relay components from the environment and returns a
// ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the relay with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	sink := obs.NewSink(logCapacity)
	dispatcher := dispatch.NewDispatcher(sink, cfg.AI.MaxAttempts)
	sender := chatwoot.NewClient(cfg.Chatwoot, sink)
	rl := relay.New(cfg.AI, dispatcher, sender, sink)

	if !cfg.AI.Configured() {
		log.Warn().Msg("AI is not configured; set AI_API_URL and AI_API_TOKEN")
	}
	if cfg.AI.Provider != "" && !provider.Known(cfg.AI.Provider) {
		log.Warn().
			Str("provider", cfg.AI.Provider).
			Strs("known", provider.Names()).
			Msg("AI_PROVIDER is not a known adapter; falling back to URL detection")
	}
	if !cfg.Chatwoot.Configured() {
		log.Warn().Msg("Chatwoot is not configured; replies will not be delivered")
	}

	h := handlers.New(cfg, rl, dispatcher, sink)
	router := api.NewRouter(h)

	return &Server{
		Handler:      router,
		Sink:         sink,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
