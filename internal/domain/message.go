package domain

// Transcript roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// StoredMessage is a single entry in a session's conversational transcript.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
