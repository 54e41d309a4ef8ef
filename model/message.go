package model

// Chat message kinds. Messages are transient: broadcast once, never stored.
const (
	ChatKindText   = "text"
	ChatKindSystem = "system"
)

// ChatMessage is a room chat line.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"` // unix ms
}
