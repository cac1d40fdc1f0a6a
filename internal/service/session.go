package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// CreateRun resolves or creates the session for a run request and enqueues
// the run. This is the single entry point behind POST /v1/runs.
func (s *Service) CreateRun(ctx context.Context, req domain.CreateRunRequest) (*domain.Session, *domain.Run, error) {
	switch req.Type {
	case domain.RunTypeStartSession:
		return s.startSession(ctx, req)
	case domain.RunTypeResumeSession:
		if req.SessionID == "" {
			return nil, nil, fmt.Errorf("session_id is required for resume_session")
		}
		session, run, err := s.resumeSession(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		return session, run, nil
	default:
		return nil, nil, fmt.Errorf("unknown run type %q", req.Type)
	}
}

func (s *Service) startSession(ctx context.Context, req domain.CreateRunRequest) (*domain.Session, *domain.Run, error) {
	now := time.Now()
	session := &domain.Session{
		SessionID:       "sess_" + uuid.New().String()[:8],
		Status:          domain.SessionStatusRunning,
		AgentName:       req.AgentName,
		ProjectDir:      req.ProjectDir,
		ParentSessionID: req.ParentSessionID,
		CreatedAt:       now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	run, err := s.enqueueRun(ctx, session, domain.RunTypeStartSession, req)
	if err != nil {
		return nil, nil, err
	}

	s.hub.PublishSessionChange(domain.StreamTypeSessionCreated, *session)
	return session, run, nil
}

func (s *Service) resumeSession(ctx context.Context, req domain.CreateRunRequest) (*domain.Session, *domain.Run, error) {
	session, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, nil, domain.ErrSessionNotFound
	}

	latest, err := s.store.GetLatestRun(ctx, session.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if latest != nil && !latest.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: run %s is %s", domain.ErrSessionBusy, latest.RunID, latest.Status)
	}

	if req.AgentName == "" {
		req.AgentName = session.AgentName
	}
	run, err := s.enqueueRun(ctx, session, domain.RunTypeResumeSession, req)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if err := s.store.MarkSessionResumed(ctx, session.SessionID, now); err != nil {
		return nil, nil, fmt.Errorf("failed to mark session resumed: %w", err)
	}
	session.Status = domain.SessionStatusRunning
	session.LastResumedAt = &now

	s.hub.PublishSessionChange(domain.StreamTypeSessionUpdated, *session)
	return session, run, nil
}

func (s *Service) enqueueRun(ctx context.Context, session *domain.Session, runType domain.RunType, req domain.CreateRunRequest) (*domain.Run, error) {
	requireMatching := false
	if req.RequireMatchingTags != nil {
		requireMatching = *req.RequireMatchingTags
	}
	run := &domain.Run{
		RunID:               "run_" + uuid.New().String()[:8],
		SessionID:           session.SessionID,
		Type:                runType,
		Status:              domain.RunStatusPending,
		Parameters:          req.Parameters,
		AgentName:           req.AgentName,
		RequiredTags:        req.RequiredTags,
		RequireMatchingTags: requireMatching,
		CreatedAt:           time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.notifyEnqueue()
	return run, nil
}

// GetSession retrieves a session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions lists all sessions.
func (s *Service) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.store.ListSessions(ctx)
}

// GetSessionStatus projects the latest run's status into the simplified
// client-facing status set.
func (s *Service) GetSessionStatus(ctx context.Context, sessionID string) (domain.ClientSessionStatus, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return domain.ClientStatusNotExistent, nil
	}

	latest, err := s.store.GetLatestRun(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	if latest == nil {
		return domain.ClientStatusFinished, nil
	}

	switch latest.Status {
	case domain.RunStatusPending, domain.RunStatusClaimed:
		return domain.ClientStatusPending, nil
	case domain.RunStatusRunning:
		return domain.ClientStatusRunning, nil
	case domain.RunStatusStopping:
		return domain.ClientStatusStopping, nil
	case domain.RunStatusStopped:
		return domain.ClientStatusStopped, nil
	default:
		return domain.ClientStatusFinished, nil
	}
}

// StopSession requests a stop of the session's latest run. Pending runs are
// cancelled directly; claimed or running runs move to stopping and wait for
// the executor's cooperative shutdown; terminal runs are a descriptive
// no-op rather than an error.
func (s *Service) StopSession(ctx context.Context, sessionID string) (*domain.StopResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	run, err := s.store.GetLatestRun(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if run == nil {
		return &domain.StopResult{OK: false, Message: "session has no runs"}, nil
	}

	switch {
	case run.Status == domain.RunStatusPending:
		// Cancelled before any runner claimed it.
		ok, err := s.store.FinishRun(ctx, run.RunID, domain.RunStatusStopped, "cancelled before claim",
			[]domain.RunStatus{domain.RunStatusPending}, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to cancel run: %w", err)
		}
		if !ok {
			// Claimed between our read and the update, fall back to a
			// cooperative stop.
			return s.StopSession(ctx, sessionID)
		}
		s.finalizeSession(ctx, run.SessionID, run.RunID, domain.RunStatusStopped, "cancelled before claim")
		return &domain.StopResult{OK: true, Message: "run cancelled before claim"}, nil

	case run.Status == domain.RunStatusClaimed || run.Status == domain.RunStatusRunning:
		if _, err := s.store.MarkRunStopping(ctx, run.RunID); err != nil {
			return nil, fmt.Errorf("failed to request stop: %w", err)
		}
		return &domain.StopResult{OK: true, Message: "stop requested, waiting for executor"}, nil

	case run.Status == domain.RunStatusStopping:
		return &domain.StopResult{OK: true, Message: "stop already requested"}, nil

	default:
		return &domain.StopResult{OK: false, Message: fmt.Sprintf("run already %s", run.Status)}, nil
	}
}

// GetSessionResult returns the most recent result event of a session, or
// nil if no result exists yet.
func (s *Service) GetSessionResult(ctx context.Context, sessionID string) (*domain.SessionResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	event, err := s.store.LatestEventOfType(ctx, sessionID, domain.EventTypeResult)
	if err != nil {
		return nil, fmt.Errorf("failed to query result event: %w", err)
	}
	if event == nil {
		return nil, nil
	}

	var payload domain.ResultPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode result payload: %w", err)
		}
	}
	return &domain.SessionResult{ResultText: payload.ResultText, ResultData: payload.ResultData}, nil
}

// BindSession records the executor's session identity. Hostname and
// executor profile arrive from the gateway, never from the executor.
func (s *Service) BindSession(ctx context.Context, sessionID string, bind *domain.BindSessionRequest) error {
	if err := s.store.BindSession(ctx, sessionID, bind); err != nil {
		return err
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reload session: %w", err)
	}
	if session != nil {
		s.hub.PublishSessionChange(domain.StreamTypeSessionUpdated, *session)
	}
	return nil
}

// PatchSessionMetadata replaces the session's metadata blob.
func (s *Service) PatchSessionMetadata(ctx context.Context, sessionID string, patch json.RawMessage) error {
	return s.store.PatchSessionMetadata(ctx, sessionID, patch)
}

// DeleteSession is the explicit administrative delete.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.hub.PublishSessionChange(domain.StreamTypeSessionDeleted, *session)
	return nil
}

// PurgeSessions bulk-deletes finished sessions older than the cutoff.
func (s *Service) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.PurgeSessionsBefore(ctx, cutoff)
}

// finalizeSession flips the owning session to finished once a run reaches
// a terminal state, records the run_completed event, and broadcasts the
// session update.
func (s *Service) finalizeSession(ctx context.Context, sessionID, runID string, status domain.RunStatus, exitReason string) {
	payload, _ := json.Marshal(domain.RunCompletedPayload{
		RunID:      runID,
		Status:     status,
		ExitReason: exitReason,
	})
	if _, err := s.AppendEvent(ctx, sessionID, domain.AppendEventRequest{
		RunID:   runID,
		Type:    domain.EventTypeRunCompleted,
		Payload: payload,
	}); err != nil {
		log.Printf("ERROR: failed to record run_completed event: %v", err)
	}

	if err := s.store.UpdateSessionStatus(ctx, sessionID, domain.SessionStatusFinished); err != nil {
		log.Printf("ERROR: failed to finish session %s: %v", sessionID, err)
		return
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		if err != nil {
			log.Printf("ERROR: failed to reload session %s: %v", sessionID, err)
		}
		return
	}
	s.hub.PublishSessionChange(domain.StreamTypeSessionUpdated, *session)
}
