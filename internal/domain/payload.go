package domain

import "encoding/json"

// Typed payloads for the known event types. Unknown types keep their raw
// payload so newer executors can emit events older coordinators pass
// through untouched.

// RunStartPayload is emitted when a runner begins executing a run.
type RunStartPayload struct {
	RunID    string `json:"run_id"`
	RunnerID string `json:"runner_id,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// MessagePayload carries a conversational message from the executor.
type MessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolPayload describes a tool invocation observed by the executor, used
// for both pre_tool and post_tool events.
type ToolPayload struct {
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ResultPayload is the final answer for a run. GetSessionResult reads the
// most recent one.
type ResultPayload struct {
	ResultText string          `json:"result_text"`
	ResultData json.RawMessage `json:"result_data,omitempty"`
}

// RunCompletedPayload closes out a run in the event log.
type RunCompletedPayload struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// ErrorPayload carries an executor-reported error.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DecodePayload unmarshals an event's payload into its typed form. Events
// of unknown type come back as json.RawMessage.
func DecodePayload(ev Event) (interface{}, error) {
	decode := func(v interface{}) (interface{}, error) {
		if len(ev.Payload) == 0 {
			return v, nil
		}
		err := json.Unmarshal(ev.Payload, v)
		return v, err
	}
	switch ev.Type {
	case EventTypeRunStart:
		return decode(&RunStartPayload{})
	case EventTypeMessage:
		return decode(&MessagePayload{})
	case EventTypePreTool, EventTypePostTool:
		return decode(&ToolPayload{})
	case EventTypeResult:
		return decode(&ResultPayload{})
	case EventTypeRunCompleted:
		return decode(&RunCompletedPayload{})
	case EventTypeError:
		return decode(&ErrorPayload{})
	default:
		return ev.Payload, nil
	}
}
