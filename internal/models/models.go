package models

import "time"

// ChatTurn is one message of the conversation sent along with a question.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question    string     `json:"question"`
	ChatHistory []ChatTurn `json:"chat_history,omitempty"`
}

// AskResponse is what every successful /ask returns. Sources always carries
// at least one entry, falling back to a placeholder when retrieval found
// nothing.
type AskResponse struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	IsRealTime  bool     `json:"is_real_time"`
	FromCache   bool     `json:"from_cache"`
	ProcessTime float64  `json:"process_time"`
}

// Document is one scored retrieval result.
type Document struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Session is an authenticated login. ExpiresAt is fixed at creation unless
// sliding renewal is enabled.
type Session struct {
	Token     string    `json:"session_token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User is a registered account. Password holds the bcrypt hash, never the
// plaintext.
type User struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatHistoryRecord is one append-only Q&A exchange. Records are never
// mutated after creation and are flushed to storage asynchronously.
type ChatHistoryRecord struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Sources    []string  `json:"sources"`
	IsRealTime bool      `json:"is_real_time"`
	Timestamp  time.Time `json:"timestamp"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse mirrors the bearer-token contract of the deployment this
// service replaces.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}
