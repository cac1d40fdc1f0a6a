package domain

import (
	"encoding/json"
	"time"
)

// Session is a resumable work context spanning one or more runs.
// Session identity outlives any individual run.
type Session struct {
	SessionID         string          `json:"session_id"`
	Status            SessionStatus   `json:"status"`
	AgentName         string          `json:"agent_name,omitempty"`
	ProjectDir        string          `json:"project_dir,omitempty"`
	ParentSessionID   string          `json:"parent_session_id,omitempty"`
	ExecutorSessionID string          `json:"executor_session_id,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	LastResumedAt     *time.Time      `json:"last_resumed_at,omitempty"`
}

// Run is one execution attempt bound to a session.
type Run struct {
	RunID               string          `json:"run_id"`
	SessionID           string          `json:"session_id"`
	Type                RunType         `json:"type"`
	Status              RunStatus       `json:"status"`
	Parameters          json.RawMessage `json:"parameters,omitempty"`
	AgentName           string          `json:"agent_name,omitempty"`
	RequiredTags        []string        `json:"required_tags,omitempty"`
	RequireMatchingTags bool            `json:"require_matching_tags"`
	ClaimedBy           string          `json:"claimed_by,omitempty"`
	ExitReason          string          `json:"exit_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ClaimedAt           *time.Time      `json:"claimed_at,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	FinishedAt          *time.Time      `json:"finished_at,omitempty"`
}

// Runner is a registered executor host. Status is derived from the last
// heartbeat and the configured thresholds, it is not a stored field.
type Runner struct {
	RunnerID            string       `json:"runner_id"`
	Hostname            string       `json:"hostname"`
	ProjectDir          string       `json:"project_dir,omitempty"`
	ExecutorProfile     string       `json:"executor_profile,omitempty"`
	Tags                []string     `json:"tags,omitempty"`
	RequireMatchingTags bool         `json:"require_matching_tags"`
	Retired             bool         `json:"retired,omitempty"`
	RegisteredAt        time.Time    `json:"registered_at"`
	LastHeartbeat       time.Time    `json:"last_heartbeat"`
	Status              RunnerStatus `json:"status,omitempty"`
}

// DeriveRunnerStatus classifies a heartbeat age against the staleness
// thresholds.
func DeriveRunnerStatus(lastHeartbeat, now time.Time, staleAfter, offlineAfter time.Duration) RunnerStatus {
	age := now.Sub(lastHeartbeat)
	switch {
	case age < staleAfter:
		return RunnerStatusOnline
	case age < offlineAfter:
		return RunnerStatusStale
	default:
		return RunnerStatusOffline
	}
}

// Event is an immutable fact appended to a session's log. EventID is
// monotonically increasing per session and is the canonical ordering for
// both replay and live delivery de-duplication.
type Event struct {
	EventID   int64           `json:"event_id"`
	SessionID string          `json:"session_id"`
	RunID     string          `json:"run_id,omitempty"`
	Type      EventType       `json:"event_type"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}
