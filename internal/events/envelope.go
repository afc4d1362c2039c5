// Package events delivers live project progress to connected observers.
package events

import (
	"encoding/json"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Type is the type of a server-to-client envelope.
type Type string

const (
	TypeConnectionEstablished Type = "connection:established"
	TypeSubscriptionConfirmed Type = "subscription:confirmed"
	TypeProjectStart          Type = "project:start"
	TypeTaskUpdate            Type = "task:update"
	TypeArtifactCreate        Type = "artifact:create"
	TypeStageComplete         Type = "stage:complete"
	TypeProjectComplete       Type = "project:complete"
	TypeError                 Type = "error"
	TypePong                  Type = "pong"
)

// Client-to-server message types.
const (
	ClientSubscribe   = "subscribe:project"
	ClientUnsubscribe = "unsubscribe:project"
	ClientPing        = "ping"
)

// Envelope is the wire format of every event.
type Envelope struct {
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a message received from an observer.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of subscribe:project.
type SubscribePayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId,omitempty"`
}

// UnsubscribePayload is the payload of unsubscribe:project.
type UnsubscribePayload struct {
	ProjectID string `json:"projectId"`
}

type ConnectionEstablishedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type SubscriptionConfirmedPayload struct {
	ProjectID string `json:"projectId"`
}

// ProjectStartPayload announces that a stage of a project is starting.
type ProjectStartPayload struct {
	ProjectID string        `json:"projectId"`
	Stage     project.Stage `json:"stage"`
	StageName string        `json:"stageName"`
	Delegates []string      `json:"delegates"`
}

// TaskUpdatePayload reports a task status change. Progress is 0-100.
type TaskUpdatePayload struct {
	TaskID    string             `json:"taskId"`
	ProjectID string             `json:"projectId"`
	Status    project.TaskStatus `json:"status"`
	Progress  int                `json:"progress"`
	Agent     string             `json:"agent"`
	Stage     project.Stage      `json:"stage"`
	Error     string             `json:"error,omitempty"`
}

type ArtifactCreatePayload struct {
	ArtifactID string           `json:"artifactId"`
	ProjectID  string           `json:"projectId"`
	Artifact   project.Artifact `json:"artifact"`
}

// ArtifactSummary identifies an artifact without its content.
type ArtifactSummary struct {
	ID   string               `json:"id"`
	Name string               `json:"name"`
	Kind project.ArtifactKind `json:"type"`
}

type StageCompletePayload struct {
	ProjectID      string            `json:"projectId"`
	Stage          project.Stage     `json:"stage"`
	CompletedTasks int               `json:"completedTasks"`
	FailedTasks    int               `json:"failedTasks"`
	TotalTasks     int               `json:"totalTasks"`
	DurationMs     int64             `json:"durationMs"`
	Artifacts      []ArtifactSummary `json:"artifacts"`
}

type ProjectCompletePayload struct {
	ProjectID      string `json:"projectId"`
	TotalArtifacts int    `json:"totalArtifacts"`
}

// ErrorPayload reports a failure. Kind and Hints are set for classified errors.
type ErrorPayload struct {
	ProjectID string   `json:"projectId,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
	Error     string   `json:"error"`
	Kind      string   `json:"kind,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}
