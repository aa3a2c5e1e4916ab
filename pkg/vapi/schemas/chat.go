package schemas

import "time"

// ChatRequest is the body of POST /api/chat. Fields are optional at the
// schema level so validation failures get the same {success, message}
// envelope as every other failure.
type ChatRequest struct {
	Message   string `json:"message,omitempty" doc:"The user's message"`
	ChatID    *int64 `json:"chat_id,omitempty" nullable:"true" doc:"Existing conversation to continue; null starts a new one"`
	SubjectID *int64 `json:"subject_id,omitempty" nullable:"true" doc:"Topic the conversation belongs to"`
	CSRFToken string `json:"csrf_token,omitempty" doc:"Session CSRF token"`
}

type ChatResult struct {
	Success      bool   `json:"success"`
	AIMessage    string `json:"ai_message,omitempty" doc:"Reply from the model"`
	ChatID       int64  `json:"chat_id,omitempty" doc:"Conversation the exchange was stored in"`
	NewChatTitle string `json:"new_chat_title,omitempty" doc:"Title, present when a conversation was created"`
	Message      string `json:"message,omitempty" doc:"Failure reason safe to show to the user"`
}

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	SubjectID *int64    `json:"subject_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	Sender    string    `json:"sender" enum:"user,assistant"`
	Text      string    `json:"message_text"`
	Timestamp time.Time `json:"timestamp"`
}
