package store

import (
	"context"
	"time"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// Store is the persistence contract for the coordinator. Any append-only,
// indexable backend can satisfy it; SQLiteStore is the provided
// implementation.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
	MarkSessionResumed(ctx context.Context, sessionID string, at time.Time) error
	BindSession(ctx context.Context, sessionID string, bind *domain.BindSessionRequest) error
	PatchSessionMetadata(ctx context.Context, sessionID string, patch []byte) error
	DeleteSession(ctx context.Context, sessionID string) error
	PurgeSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetLatestRun(ctx context.Context, sessionID string) (*domain.Run, error)
	ListRunsBySession(ctx context.Context, sessionID string) ([]domain.Run, error)
	ListPendingRuns(ctx context.Context) ([]domain.Run, error)
	ListActiveRuns(ctx context.Context) ([]domain.Run, error)
	ClaimRun(ctx context.Context, runID, runnerID string, at time.Time) (bool, error)
	MarkRunStarted(ctx context.Context, runID string, at time.Time) (bool, error)
	MarkRunStopping(ctx context.Context, runID string) (bool, error)
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, exitReason string, from []domain.RunStatus, at time.Time) (bool, error)

	// Runners
	CreateRunner(ctx context.Context, runner *domain.Runner) error
	GetRunner(ctx context.Context, runnerID string) (*domain.Runner, error)
	ListRunners(ctx context.Context) ([]domain.Runner, error)
	TouchRunnerHeartbeat(ctx context.Context, runnerID string, at time.Time) (bool, error)
	RetireRunner(ctx context.Context, runnerID string) error

	// Events
	AppendEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, sessionID string, sinceID int64, limit int) ([]domain.Event, error)
	LatestEventOfType(ctx context.Context, sessionID string, eventType domain.EventType) (*domain.Event, error)

	Close() error
}
