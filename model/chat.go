package model

// Role of a chat message author
type Role string

// Role constants
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a session's conversation log
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
