package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/api"
	"github.com/fleetstake/fleetstake/api/handlers"
)

type Server struct {
	logger *zap.Logger
	addr   string

	nodes      *handlers.Nodes
	validators *handlers.Validators
	events     *handlers.Events
	health     *handlers.Health
}

func New(
	logger *zap.Logger,
	addr string,
	nodes *handlers.Nodes,
	validators *handlers.Validators,
	events *handlers.Events,
	health *handlers.Health,
) *Server {
	return &Server{
		logger:     logger,
		addr:       addr,
		nodes:      nodes,
		validators: validators,
		events:     events,
		health:     health,
	}
}

func (s *Server) Run() error {
	router := chi.NewRouter()

	router.Get("/v1/nodes", api.Handler(s.nodes.List))
	router.Get("/v1/nodes/{index}", api.Handler(s.nodes.Get))
	router.Get("/v1/validators", api.Handler(s.validators.List))
	router.Get("/v1/events", api.Handler(s.events.List))
	router.Get("/v1/health", api.Handler(s.health.Get))

	s.logger.Info("Serving API", zap.String("addr", s.addr))

	server := &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  12 * time.Second,
		WriteTimeout: 12 * time.Second,
	}
	return server.ListenAndServe()
}
