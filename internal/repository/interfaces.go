package repository

import (
	"context"

	"github.com/jxiee/campus-qa/internal/models"
)

// Repository aggregates all repository interfaces
type Repository interface {
	User() UserRepository
	Session() SessionRepository
	History() HistoryRepository
	Event() EventRepository
}

// UserRepository defines account storage operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// SessionRepository defines durable session operations; the in-memory
// session store stays authoritative for reads.
type SessionRepository interface {
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, token string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// HistoryRepository defines chat-history storage operations
type HistoryRepository interface {
	AppendRecords(ctx context.Context, records []*models.ChatHistoryRecord) error
	GetUserHistory(ctx context.Context, username string, limit, offset int) ([]*models.ChatHistoryRecord, error)
	CountUserHistory(ctx context.Context, username string) (int, error)
	Trim(ctx context.Context, keep int) error
}

// EventRepository defines event logging operations
type EventRepository interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
}
