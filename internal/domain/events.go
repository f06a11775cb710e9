package domain

// EventName tags a progress event frame.
type EventName string

const (
	EventStatus   EventName = "status"
	EventWarning  EventName = "warning"
	EventComplete EventName = "complete"
	EventError    EventName = "error"
)

// EventData is the JSON payload of a progress event. Fields are populated
// per event name: status carries progress/current/total, warning only a
// message, complete the job id and humanized size, error a detail.
type EventData struct {
	Message  string `json:"message"`
	Progress int    `json:"progress,omitempty"`
	Current  int    `json:"current,omitempty"`
	Total    int    `json:"total,omitempty"`
	JobID    string `json:"jobId,omitempty"`
	Size     string `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProgressEvent is one frame on a job's progress channel. Events for one
// job are strictly ordered; complete or error is always the last frame.
type ProgressEvent struct {
	Name EventName
	Data EventData
}

// Terminal reports whether the event closes the channel.
func (e ProgressEvent) Terminal() bool {
	return e.Name == EventComplete || e.Name == EventError
}

// StatusEvent builds a coarse-grained progress frame.
func StatusEvent(message string, progress, current, total int) ProgressEvent {
	return ProgressEvent{
		Name: EventStatus,
		Data: EventData{Message: message, Progress: progress, Current: current, Total: total},
	}
}

// WarningEvent reports a per-member failure that did not abort the batch.
func WarningEvent(message string) ProgressEvent {
	return ProgressEvent{Name: EventWarning, Data: EventData{Message: message}}
}

// CompleteEvent is the terminal success frame carrying the retrievable
// job id and a human-readable archive size.
func CompleteEvent(message, jobID, size string) ProgressEvent {
	return ProgressEvent{
		Name: EventComplete,
		Data: EventData{Message: message, Progress: 100, JobID: jobID, Size: size},
	}
}

// ErrorEvent is the terminal failure frame.
func ErrorEvent(message, detail string) ProgressEvent {
	return ProgressEvent{Name: EventError, Data: EventData{Message: message, Error: detail}}
}
