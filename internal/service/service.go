package service

import (
	"sync"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/hub"
	"github.com/agentfleet/agentfleet/internal/repository"
)

// Service owns the run queue, session lifecycle, runner registry and event
// log. It is constructed once at process start and passed to all handlers.
type Service struct {
	store  store.Store
	hub    *hub.Hub
	config *config.Config

	// enqueueSignal is closed and replaced whenever a run becomes
	// pending, waking long-pollers.
	mu            sync.Mutex
	enqueueSignal chan struct{}
}

// New creates the coordinator service.
func New(store store.Store, h *hub.Hub, cfg *config.Config) *Service {
	return &Service{
		store:         store,
		hub:           h,
		config:        cfg,
		enqueueSignal: make(chan struct{}),
	}
}

// Hub exposes the broadcaster for the stream transport.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}
