package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// RegisterRunner creates a runner record. The runner is online until its
// heartbeats lapse; status is always derived, never stored.
func (s *Service) RegisterRunner(ctx context.Context, req domain.RegisterRunnerRequest) (*domain.Runner, error) {
	if req.Hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	now := time.Now()
	runner := &domain.Runner{
		RunnerID:            "rnr_" + uuid.New().String()[:8],
		Hostname:            req.Hostname,
		ProjectDir:          req.ProjectDir,
		ExecutorProfile:     req.ExecutorProfile,
		Tags:                req.Tags,
		RequireMatchingTags: req.RequireMatchingTags,
		RegisteredAt:        now,
		LastHeartbeat:       now,
	}
	if err := s.store.CreateRunner(ctx, runner); err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	runner.Status = domain.RunnerStatusOnline
	return runner, nil
}

// Heartbeat records runner liveness. Unknown runners must re-register.
func (s *Service) Heartbeat(ctx context.Context, runnerID string) error {
	ok, err := s.store.TouchRunnerHeartbeat(ctx, runnerID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if !ok {
		return domain.ErrUnknownRunner
	}
	return nil
}

// GetRunner retrieves one runner with its derived status.
func (s *Service) GetRunner(ctx context.Context, runnerID string) (*domain.Runner, error) {
	runner, err := s.store.GetRunner(ctx, runnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get runner: %w", err)
	}
	if runner == nil {
		return nil, nil
	}
	runner.Status = domain.DeriveRunnerStatus(runner.LastHeartbeat, time.Now(), s.config.StaleAfter, s.config.OfflineAfter)
	return runner, nil
}

// ListRunners lists every registered runner, retired included, with
// derived statuses. The registry never evicts.
func (s *Service) ListRunners(ctx context.Context) ([]domain.Runner, error) {
	runners, err := s.store.ListRunners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runners: %w", err)
	}
	now := time.Now()
	for i := range runners {
		runners[i].Status = domain.DeriveRunnerStatus(runners[i].LastHeartbeat, now, s.config.StaleAfter, s.config.OfflineAfter)
	}
	return runners, nil
}

// UnregisterRunner logically retires a runner. Its record and historical
// claims stay on the books.
func (s *Service) UnregisterRunner(ctx context.Context, runnerID string) error {
	return s.store.RetireRunner(ctx, runnerID)
}
