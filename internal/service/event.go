package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// AppendEvent durably stores an event on the session's log and then hands
// the same event to the broadcaster. Publishing happens after the store
// commit and before returning, so no subscriber can learn of an event
// before it is queryable, and no poller/subscriber gap exists.
func (s *Service) AppendEvent(ctx context.Context, sessionID string, req domain.AppendEventRequest) (*domain.Event, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("event_type is required")
	}
	event := &domain.Event{
		SessionID: sessionID,
		RunID:     req.RunID,
		Type:      req.Type,
		Ts:        time.Now().UnixMilli(),
		Payload:   req.Payload,
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	s.hub.PublishEvent(*event)
	return event, nil
}

// ListEvents returns a session's events after sinceID, ascending, capped
// at limit (the configured page size when limit is zero).
func (s *Service) ListEvents(ctx context.Context, sessionID string, sinceID int64, limit int) ([]domain.Event, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if limit <= 0 || limit > s.config.EventPageLimit {
		limit = s.config.EventPageLimit
	}
	return s.store.ListEvents(ctx, sessionID, sinceID, limit)
}
