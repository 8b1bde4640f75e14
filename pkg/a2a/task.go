package a2a

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTask creates an empty task with fresh identifiers.  The session ID
// doubles as the conversation context key for checkpointing.
func NewTask() *Task {
	return &Task{
		ID:        uuid.New().String(),
		SessionID: uuid.New().String(),
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (task *Task) ToStatus(status TaskState, message *Message) {
	task.Status.State = status
	task.Status.Timestamp = time.Now().UTC()
	task.Status.Message = message
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

func (task *Task) AddArtifact(artifact Artifact) {
	task.Artifacts = append(task.Artifacts, artifact)
}

/*
TaskStatusUpdateEvent is sent when the agent wishes to inform the client of
a status transition.
*/
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

/*
TaskArtifactUpdateEvent is emitted when a new or updated artefact is
available for a task.
*/
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskSendParams represents the parameters for sending a task message
type TaskSendParams struct {
	// ID is the unique identifier for the task being initiated or continued
	ID string `json:"id"`
	// SessionID is an optional identifier for the session this task belongs to
	SessionID string `json:"sessionId,omitempty"`
	// Message is the message content to send to the agent for processing
	Message Message `json:"message"`
	// PushNotification is optional push notification information for receiving notifications
	PushNotification *PushNotificationConfig `json:"pushNotification,omitempty"`
	// HistoryLength is an optional parameter to specify how much message history to include
	HistoryLength *int `json:"historyLength,omitempty"`
	// Metadata is optional metadata associated with sending this message
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams represents the parameters for querying task information
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PushNotificationConfig represents the configuration for push notifications
type PushNotificationConfig struct {
	// URL is the endpoint where the agent should send notifications
	URL string `json:"url"`
	// Token is a token to be included in push notification requests for verification
	Token *string `json:"token,omitempty"`
	// Authentication is optional authentication details needed by the agent
	Authentication *AgentAuthentication `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig represents the configuration for task-specific push notifications
type TaskPushNotificationConfig struct {
	// ID is the ID of the task the notification config is associated with
	ID string `json:"id"`
	// PushNotificationConfig is the push notification configuration details
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

func (task *Task) String() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	indent := "   "
	bullet := "│ "

	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	if task.SessionID != "" {
		sb.WriteString(bullet + labelStyle.Render("Session ID: ") + valueStyle.Render(task.SessionID) + "\n")
	}

	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil && len(task.Status.Message.Parts) > 0 {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.Parts[0].Text) + "\n")
	}

	sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")

	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	return sb.String()
}
