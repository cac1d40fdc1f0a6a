package domain

import "encoding/json"

// InvocationSchemaVersion is the current version of the executor stdin
// payload. Executors must ignore unknown ExecutorConfig keys.
const InvocationSchemaVersion = 1

// InvocationMode tells the executor whether to start fresh or resume.
type InvocationMode string

const (
	InvocationModeStart  InvocationMode = "start"
	InvocationModeResume InvocationMode = "resume"
)

// InvocationPayload is written to the executor subprocess's stdin when a
// runner launches it for a claimed run.
type InvocationPayload struct {
	SchemaVersion  int             `json:"schema_version"`
	Mode           InvocationMode  `json:"mode"`
	SessionID      string          `json:"session_id"`
	Prompt         string          `json:"prompt,omitempty"`
	ProjectDir     string          `json:"project_dir,omitempty"`
	AgentBlueprint json.RawMessage `json:"agent_blueprint,omitempty"`
	ExecutorConfig json.RawMessage `json:"executor_config,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}
