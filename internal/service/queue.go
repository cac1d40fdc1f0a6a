package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// PollRun selects and claims at most one eligible pending run for the
// runner. Losing a claim race is not an error: the poller just moves on to
// the next candidate and eventually gets nil. When wait is positive the
// call long-polls until a matching run appears or the wait elapses. Tags
// override the runner's registered tag set when non-empty.
func (s *Service) PollRun(ctx context.Context, runnerID string, tags []string, wait time.Duration) (*domain.Run, error) {
	runner, err := s.store.GetRunner(ctx, runnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get runner: %w", err)
	}
	if runner == nil {
		return nil, domain.ErrUnknownRunner
	}
	if len(tags) > 0 {
		r := *runner
		r.Tags = tags
		runner = &r
	}

	// Polling doubles as a heartbeat.
	if _, err := s.store.TouchRunnerHeartbeat(ctx, runnerID, time.Now()); err != nil {
		log.Printf("WARN: failed to touch heartbeat for %s: %v", runnerID, err)
	}

	if wait > s.config.PollWait {
		wait = s.config.PollWait
	}
	deadline := time.Now().Add(wait)

	for {
		run, err := s.claimNext(ctx, runner)
		if err != nil {
			return nil, err
		}
		if run != nil {
			return run, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if !s.waitForEnqueue(ctx, remaining) {
			return nil, nil
		}
	}
}

func (s *Service) claimNext(ctx context.Context, runner *domain.Runner) (*domain.Run, error) {
	pending, err := s.store.ListPendingRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending runs: %w", err)
	}

	now := time.Now()
	for i := range pending {
		run := &pending[i]
		if !runMatchesRunner(run, runner) {
			continue
		}
		claimed, err := s.store.ClaimRun(ctx, run.RunID, runner.RunnerID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim run: %w", err)
		}
		if !claimed {
			// A concurrent poller won this one, try the next candidate.
			continue
		}
		claimedRun, err := s.store.GetRun(ctx, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload claimed run: %w", err)
		}
		return claimedRun, nil
	}
	return nil, nil
}

// runMatchesRunner decides run eligibility by tags. A run with no required
// tags matches any runner. A run with required tags matches runners whose
// tags intersect them; a run carrying require_matching_tags=false is
// permissive and matches any runner as well.
func runMatchesRunner(run *domain.Run, runner *domain.Runner) bool {
	if len(run.RequiredTags) == 0 {
		return true
	}
	if tagsIntersect(run.RequiredTags, runner.Tags) {
		return true
	}
	return !run.RequireMatchingTags
}

func tagsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// ReportStarted handles the runner's started report: claimed moves to
// running; a run already asked to stop stays in stopping. Reports for
// terminal runs are absorbed as no-ops.
func (s *Service) ReportStarted(ctx context.Context, runID string) error {
	run, err := s.getRunForReport(ctx, runID, domain.RunStatusRunning)
	if err != nil || run == nil {
		return err
	}

	ok, err := s.store.MarkRunStarted(ctx, runID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	if !ok {
		// Retried started report; run_start is already on the log.
		log.Printf("WARN: duplicate started report for run %s absorbed", runID)
		return nil
	}

	payload, _ := json.Marshal(domain.RunStartPayload{RunID: runID, RunnerID: run.ClaimedBy})
	if _, err := s.AppendEvent(ctx, run.SessionID, domain.AppendEventRequest{
		RunID:   runID,
		Type:    domain.EventTypeRunStart,
		Payload: payload,
	}); err != nil {
		log.Printf("ERROR: failed to record run_start event: %v", err)
	}
	return nil
}

// ReportCompleted handles the runner's completion report.
func (s *Service) ReportCompleted(ctx context.Context, runID string) error {
	return s.finishFromReport(ctx, runID, domain.RunStatusCompleted, "completed")
}

// ReportFailed handles the runner's failure report.
func (s *Service) ReportFailed(ctx context.Context, runID, reason string) error {
	if reason == "" {
		reason = "failed"
	}
	return s.finishFromReport(ctx, runID, domain.RunStatusFailed, reason)
}

// ReportStopped handles the executor's acknowledgement of a stop request.
func (s *Service) ReportStopped(ctx context.Context, runID string) error {
	return s.finishFromReport(ctx, runID, domain.RunStatusStopped, "stopped")
}

func (s *Service) finishFromReport(ctx context.Context, runID string, status domain.RunStatus, exitReason string) error {
	run, err := s.getRunForReport(ctx, runID, status)
	if err != nil || run == nil {
		return err
	}

	from := []domain.RunStatus{domain.RunStatusClaimed, domain.RunStatusRunning, domain.RunStatusStopping}
	ok, err := s.store.FinishRun(ctx, runID, status, exitReason, from, time.Now())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if !ok {
		// Lost a race with another report; the duplicate is a no-op.
		log.Printf("WARN: duplicate %s report for run %s absorbed", status, runID)
		return nil
	}

	s.finalizeSession(ctx, run.SessionID, runID, status, exitReason)
	return nil
}

// getRunForReport loads the run and applies the idempotency and validity
// rules shared by all report handlers. Returns (nil, nil) when the report
// should be absorbed as a no-op.
func (s *Service) getRunForReport(ctx context.Context, runID string, reported domain.RunStatus) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		// At-least-once delivery from runners: duplicates are expected.
		log.Printf("WARN: %s report for terminal run %s (%s) absorbed", reported, runID, run.Status)
		return nil, nil
	}
	if run.Status == domain.RunStatusPending {
		// A never-claimed run cannot legally receive any report.
		return nil, &domain.InvalidTransitionError{RunID: runID, Current: run.Status, Reported: reported}
	}
	return run, nil
}

// ListOrphanedRuns surfaces runs held by offline runners: claimed or
// running, never terminally reported, claimed_by a runner whose derived
// status is offline. The coordinator does not reclaim them automatically.
func (s *Service) ListOrphanedRuns(ctx context.Context) ([]domain.Run, error) {
	active, err := s.store.ListActiveRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active runs: %w", err)
	}

	now := time.Now()
	var orphaned []domain.Run
	statusCache := make(map[string]domain.RunnerStatus)
	for _, run := range active {
		if run.ClaimedBy == "" {
			continue
		}
		status, seen := statusCache[run.ClaimedBy]
		if !seen {
			runner, err := s.store.GetRunner(ctx, run.ClaimedBy)
			if err != nil {
				return nil, fmt.Errorf("failed to get runner %s: %w", run.ClaimedBy, err)
			}
			if runner == nil {
				status = domain.RunnerStatusOffline
			} else {
				status = domain.DeriveRunnerStatus(runner.LastHeartbeat, now, s.config.StaleAfter, s.config.OfflineAfter)
			}
			statusCache[run.ClaimedBy] = status
		}
		if status == domain.RunnerStatusOffline {
			orphaned = append(orphaned, run)
		}
	}
	return orphaned, nil
}

// notifyEnqueue wakes all long-pollers waiting for a new pending run.
func (s *Service) notifyEnqueue() {
	s.mu.Lock()
	close(s.enqueueSignal)
	s.enqueueSignal = make(chan struct{})
	s.mu.Unlock()
}

// waitForEnqueue blocks until a run is enqueued, the timeout elapses, or
// the context is cancelled. Returns true only on an enqueue signal.
func (s *Service) waitForEnqueue(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	signal := s.enqueueSignal
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-signal:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
