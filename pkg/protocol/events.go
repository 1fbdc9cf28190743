// Package protocol defines the wire shapes exchanged between a scheduler
// instance and the remote browser agents that execute its tasks:
// event-name constants, request/response frames, and the task payload
// types themselves.
package protocol

// WebSocket event names pushed from server to client.
const (
	// EventTaskNew dispatches a freshly-committed task to its sender.
	EventTaskNew = "task:new"
	// EventTaskETA is a per-sender estimate of its next dispatch, emitted
	// after each successful dispatch (spec.md §4.6 step q).
	EventTaskETA = "task:eta"
	// EventTaskPickup names a pickup request for senders that missed a
	// push while reconnecting; the gateway routes the request itself as
	// MethodTaskPickup ("task.pickup").
	EventTaskPickup = "task:pickup"
	// EventTaskComplete/EventTaskFail are pushed to the owning account's
	// channels after a reconciliation (spec.md §4.7-4.8). An agent
	// reports a result with MethodTaskComplete/MethodTaskFail instead.
	EventTaskComplete = "task:complete"
	EventTaskFail     = "task:fail"

	// EventAuth authenticates a sender connection.
	EventAuth = "auth"
	// EventHeartbeat keeps a sender marked online (spec.md §3, 60s
	// staleness threshold).
	EventHeartbeat = "heartbeat"

	// EventSenderRestricted/Online/Offline are account-wide notices
	// pushed through the Agent Registry.
	EventSenderRestricted = "sender:restricted"
	EventSenderOnline     = "sender:online"
	EventSenderOffline    = "sender:offline"

	// EventWarmupCompleted names the warmup auto-completion audit event.
	// The Scheduler Tick's sweep records completions as a log line and
	// does not push this event.
	EventWarmupCompleted = "warmup:completed"
)

// TaskPayload is the task body returned by a task.pickup call. The
// scheduler's task:new push carries only task_id and target.
type TaskPayload struct {
	TaskID         string `json:"task_id"`
	Type           string `json:"type"`
	TargetUsername string `json:"target_username"`
	Message        string `json:"message"`
	CampaignID     string `json:"campaign_id"`
}

// TaskETAPayload describes a task:eta hint. The scheduler's push carries
// eta_seconds only, with no campaign_id.
type TaskETAPayload struct {
	CampaignID string `json:"campaign_id"`
	ETASeconds int    `json:"eta_seconds"`
}

// TaskCompletePayload is what an agent sends to report success. At is
// the agent's own record of when the send happened — a browser
// extension may report it as an RFC3339 string or a Unix timestamp
// depending on its JS runtime, so it is decoded loosely and normalized
// through internal/boundary rather than given a fixed Go type.
type TaskCompletePayload struct {
	TaskID   string      `json:"task_id"`
	Username string      `json:"username"`
	ThreadID string      `json:"thread_id,omitempty"`
	At       interface{} `json:"at,omitempty"`
}

// TaskFailPayload is what an agent sends to report failure. At has the
// same loosely-typed boundary treatment as TaskCompletePayload.At.
type TaskFailPayload struct {
	TaskID    string      `json:"task_id"`
	Error     string      `json:"error"`
	ErrorType string      `json:"error_type"`
	Stack     string      `json:"stack,omitempty"`
	At        interface{} `json:"at,omitempty"`
}

// AuthPayload authenticates a sender's websocket connection.
type AuthPayload struct {
	SenderID string `json:"sender_id"`
	Token    string `json:"token"`
}
