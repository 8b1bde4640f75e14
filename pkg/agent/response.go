package agent

// The response reducer translates the structured status+message the engine
// extracted at turn end into the task outcome the protocol layer
// understands.  It is a pure function of the snapshot passed in.

// ResponseStatus enumerates the statuses the model may set on its
// structured terminal response.
type ResponseStatus string

const (
	StatusInputRequired ResponseStatus = "input_required"
	StatusCompleted     ResponseStatus = "completed"
	StatusError         ResponseStatus = "error"
)

// ResponseFormat is the typed status+message object produced at the end of
// a reasoning turn.
type ResponseFormat struct {
	Status  ResponseStatus `json:"status"`
	Message string         `json:"message"`
}

// Response is one externally visible event: an in-progress notification
// while a turn runs, or the single terminal outcome.
type Response struct {
	IsTaskComplete   bool   `json:"is_task_complete"`
	RequireUserInput bool   `json:"require_user_input"`
	Content          string `json:"content"`
}

// FallbackText is the terminal content when no structured response was
// produced.
const FallbackText = "We are unable to process your request at the moment. Please try again."

// Snapshot keys under which the agent checkpoints conversation state.
const (
	KeyMessages           = "messages"
	KeyStructuredResponse = "structured_response"
)

// Reduce maps the conversation-state snapshot for a turn into its terminal
// Response.  An absent or malformed structured response yields the fallback
// row, never an error.
func Reduce(snapshot map[string]any) Response {
	structured, ok := snapshot[KeyStructuredResponse].(ResponseFormat)
	if ok {
		switch structured.Status {
		case StatusInputRequired, StatusError:
			return Response{
				IsTaskComplete:   false,
				RequireUserInput: true,
				Content:          structured.Message,
			}
		case StatusCompleted:
			return Response{
				IsTaskComplete:   true,
				RequireUserInput: false,
				Content:          structured.Message,
			}
		}
	}

	return Response{
		IsTaskComplete:   false,
		RequireUserInput: true,
		Content:          FallbackText,
	}
}

// ResponseSchema is the strict JSON schema the engine uses to extract the
// structured terminal response.
func ResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []string{
					string(StatusInputRequired),
					string(StatusCompleted),
					string(StatusError),
				},
			},
			"message": map[string]any{
				"type": "string",
			},
		},
		"required":             []string{"status", "message"},
		"additionalProperties": false,
	}
}
