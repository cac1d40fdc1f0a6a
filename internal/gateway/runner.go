package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/domain"
)

// Runner is the agent loop a runner host runs alongside its gateway:
// register, heartbeat, poll for runs, launch the executor for each claim
// and report the outcome.
type Runner struct {
	cfg      *config.GatewayConfig
	client   *Client
	gateway  *Gateway
	executor Executor

	runnerID string
}

// NewRunner creates the runner loop.
func NewRunner(cfg *config.GatewayConfig, client *Client, gw *Gateway, executor Executor) *Runner {
	return &Runner{
		cfg:      cfg,
		client:   client,
		gateway:  gw,
		executor: executor,
	}
}

// Run registers the runner and blocks polling for work until the context
// is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var tags []string
	if r.cfg.Tags != "" {
		for _, t := range strings.Split(r.cfg.Tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	runner, err := r.client.Register(ctx, domain.RegisterRunnerRequest{
		Hostname:            r.gateway.hostname,
		ProjectDir:          r.cfg.ProjectDir,
		ExecutorProfile:     r.cfg.ExecutorProfile,
		Tags:                tags,
		RequireMatchingTags: r.cfg.RequireMatchingTags,
	})
	if err != nil {
		return fmt.Errorf("failed to register runner: %w", err)
	}
	r.runnerID = runner.RunnerID
	log.Printf("Registered as runner %s (%s)", r.runnerID, r.gateway.hostname)

	go r.heartbeatLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		run, err := r.client.Poll(ctx, r.runnerID, tags, r.cfg.PollInterval)
		if err != nil {
			log.Printf("WARN: poll failed: %v", err)
			select {
			case <-time.After(r.cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if run == nil {
			continue
		}
		r.handleRun(ctx, run)
	}
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.client.Heartbeat(ctx, r.runnerID); err != nil {
				log.Printf("WARN: heartbeat failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) handleRun(ctx context.Context, run *domain.Run) {
	log.Printf("Claimed run %s (session %s)", run.RunID, run.SessionID)

	r.gateway.AllowSession(run.SessionID)
	defer r.gateway.RevokeSession(run.SessionID)

	if err := r.client.ReportStarted(ctx, run.RunID); err != nil {
		log.Printf("ERROR: failed to report started for %s: %v", run.RunID, err)
	}

	payload := buildInvocation(run, r.cfg.ProjectDir)
	if err := r.executor.Invoke(ctx, payload); err != nil {
		log.Printf("ERROR: executor failed for run %s: %v", run.RunID, err)
		if err := r.client.ReportFailed(ctx, run.RunID, err.Error()); err != nil {
			log.Printf("ERROR: failed to report failure for %s: %v", run.RunID, err)
		}
		return
	}

	// Duplicate reports are absorbed upstream, so it is safe to report
	// completion even when the executor already did.
	if err := r.client.ReportCompleted(ctx, run.RunID); err != nil {
		log.Printf("ERROR: failed to report completion for %s: %v", run.RunID, err)
	}
}

// buildInvocation translates a claimed run into the versioned executor
// stdin payload.
func buildInvocation(run *domain.Run, projectDir string) domain.InvocationPayload {
	mode := domain.InvocationModeStart
	if run.Type == domain.RunTypeResumeSession {
		mode = domain.InvocationModeResume
	}

	var prompt string
	var executorConfig json.RawMessage
	if len(run.Parameters) > 0 {
		var params struct {
			Prompt         string          `json:"prompt"`
			ExecutorConfig json.RawMessage `json:"executor_config"`
		}
		if err := json.Unmarshal(run.Parameters, &params); err != nil {
			log.Printf("WARN: failed to decode run parameters for %s: %v", run.RunID, err)
		} else {
			prompt = params.Prompt
			executorConfig = params.ExecutorConfig
		}
	}

	return domain.InvocationPayload{
		SchemaVersion:  domain.InvocationSchemaVersion,
		Mode:           mode,
		SessionID:      run.SessionID,
		Prompt:         prompt,
		ProjectDir:     projectDir,
		ExecutorConfig: executorConfig,
	}
}
