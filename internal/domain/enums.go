// Package domain defines the core domain models for the coordinator.
package domain

// RunType distinguishes the two ways a run can enter a session.
type RunType string

const (
	RunTypeStartSession  RunType = "start_session"
	RunTypeResumeSession RunType = "resume_session"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusClaimed   RunStatus = "claimed"
	RunStatusRunning   RunStatus = "running"
	RunStatusStopping  RunStatus = "stopping"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusStopped:
		return true
	}
	return false
}

// SessionStatus represents the stored status of a session.
type SessionStatus string

const (
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusFinished SessionStatus = "finished"
)

// ClientSessionStatus is the simplified status set exposed to clients.
// It is derived from the session's latest run.
type ClientSessionStatus string

const (
	ClientStatusPending     ClientSessionStatus = "pending"
	ClientStatusRunning     ClientSessionStatus = "running"
	ClientStatusStopping    ClientSessionStatus = "stopping"
	ClientStatusFinished    ClientSessionStatus = "finished"
	ClientStatusStopped     ClientSessionStatus = "stopped"
	ClientStatusNotExistent ClientSessionStatus = "not_existent"
)

// RunnerStatus is derived from the runner's last heartbeat, never stored.
type RunnerStatus string

const (
	RunnerStatusOnline  RunnerStatus = "online"
	RunnerStatusStale   RunnerStatus = "stale"
	RunnerStatusOffline RunnerStatus = "offline"
)

// EventType represents the type of an event.
type EventType string

const (
	EventTypeRunStart     EventType = "run_start"
	EventTypeMessage      EventType = "message"
	EventTypePreTool      EventType = "pre_tool"
	EventTypePostTool     EventType = "post_tool"
	EventTypeResult       EventType = "result"
	EventTypeRunCompleted EventType = "run_completed"
	EventTypeError        EventType = "error"
)
