package protocol

import "fmt"

const (
	StatusSuccess = "success"

	MessageNotLoggedIn    = "Not logged in or session expired"
	MessageInvalidJSON    = "Invalid JSON format"
	MessageSessionExpired = "Session expired"
)

func LoginResponse(sessionID string) Envelope {
	return Envelope{Event: TypeLoginResponse, Data: map[string]any{
		"session_id": sessionID,
		"status":     StatusSuccess,
	}}
}

func LogoutResponse() Envelope {
	return Envelope{Event: TypeLogoutResponse, Data: map[string]any{"status": StatusSuccess}}
}

func AgentRequestReceived(taskID string) Envelope {
	return Envelope{Event: TypeAgentRequestReceived, Data: map[string]any{"task_id": taskID}}
}

func ToolCall(taskID, toolName string, kwargs map[string]any) Envelope {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Envelope{Event: TypeToolCall, Data: map[string]any{
		"task_id":     taskID,
		"tool_name":   toolName,
		"tool_kwargs": kwargs,
	}}
}

func ToolResult(taskID, toolName, output string) Envelope {
	return Envelope{Event: TypeToolResult, Data: map[string]any{
		"task_id":     taskID,
		"tool_name":   toolName,
		"tool_output": output,
	}}
}

func AgentOutput(taskID, output string) Envelope {
	return Envelope{Event: TypeAgentOutput, Data: map[string]any{
		"task_id": taskID,
		"output":  output,
	}}
}

func AgentResponse(taskID, response string) Envelope {
	return Envelope{Event: TypeAgentResponse, Data: map[string]any{
		"task_id":  taskID,
		"response": response,
	}}
}

func RequestCancelled(taskID string) Envelope {
	return Envelope{Event: TypeRequestCancelled, Data: map[string]any{"task_id": taskID}}
}

func TaskCancelled(taskID string) Envelope {
	return Envelope{Event: TypeTaskCancelled, Data: map[string]any{"task_id": taskID}}
}

// Error builds a connection-scoped error event.
func Error(message string) Envelope {
	return Envelope{Event: TypeError, Data: map[string]any{"message": message}}
}

// TaskError builds an error event correlated to one task.
func TaskError(taskID, message string) Envelope {
	return Envelope{Event: TypeError, Data: map[string]any{
		"task_id": taskID,
		"message": message,
	}}
}

func NotLoggedIn() Envelope { return Error(MessageNotLoggedIn) }

func InvalidJSON() Envelope { return Error(MessageInvalidJSON) }

func UnknownEvent(eventType string) Envelope {
	return Error(fmt.Sprintf("Unknown event type: %s", eventType))
}

func TaskNotFound(taskID string) Envelope {
	return Error(fmt.Sprintf("Task %s not found", taskID))
}
