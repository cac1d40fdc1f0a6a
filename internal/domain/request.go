package domain

import "encoding/json"

// CreateRunRequest is the body of POST /v1/runs.
type CreateRunRequest struct {
	Type                RunType         `json:"type"`
	SessionID           string          `json:"session_id,omitempty"`
	Parameters          json.RawMessage `json:"parameters,omitempty"`
	AgentName           string          `json:"agent_name,omitempty"`
	ProjectDir          string          `json:"project_dir,omitempty"`
	ParentSessionID     string          `json:"parent_session_id,omitempty"`
	RequiredTags        []string        `json:"required_tags,omitempty"`
	RequireMatchingTags *bool           `json:"require_matching_tags,omitempty"`
}

// CreateRunResponse is the response to POST /v1/runs.
type CreateRunResponse struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Status    RunStatus `json:"status"`
}

// RegisterRunnerRequest is the body of POST /runner/runners.
type RegisterRunnerRequest struct {
	Hostname            string   `json:"hostname"`
	ProjectDir          string   `json:"project_dir,omitempty"`
	ExecutorProfile     string   `json:"executor_profile,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	RequireMatchingTags bool     `json:"require_matching_tags,omitempty"`
}

// ReportFailedRequest carries the failure detail of a failed report.
type ReportFailedRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AppendEventRequest is the body of the gateway-forwarded events endpoint.
type AppendEventRequest struct {
	RunID   string          `json:"run_id,omitempty"`
	Type    EventType       `json:"event_type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BindSessionRequest links a coordinator session to the executor's own
// session identity. Hostname and ExecutorProfile are filled in by the
// runner gateway, never trusted from the executor.
type BindSessionRequest struct {
	ExecutorSessionID string `json:"executor_session_id"`
	ProjectDir        string `json:"project_dir,omitempty"`
	Hostname          string `json:"hostname,omitempty"`
	ExecutorProfile   string `json:"executor_profile,omitempty"`
}

// StopResult distinguishes "stopped now" from "already finished".
type StopResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// SessionResult is the response of GET /v1/sessions/:id/result.
type SessionResult struct {
	ResultText string          `json:"result_text"`
	ResultData json.RawMessage `json:"result_data,omitempty"`
}
