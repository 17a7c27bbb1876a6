package chat

// Entry is one question/answer pair of a page conversation.
type Entry struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

// State describes where the chat flow is in its submit cycle.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateAnswered   State = "answered"
	StateFailed     State = "failed"
)

// Snapshot is a copy of the conversation safe to hand to handlers.
type Snapshot struct {
	Entries   []Entry `json:"entries"`
	State     State   `json:"state"`
	LastError string  `json:"lastError,omitempty"`
}
