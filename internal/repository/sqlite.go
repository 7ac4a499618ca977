package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db          *store.DB
	userRepo    UserRepository
	sessionRepo SessionRepository
	historyRepo HistoryRepository
	eventRepo   EventRepository
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:          db,
		userRepo:    &SQLiteUserRepository{db: db},
		sessionRepo: &SQLiteSessionRepository{db: db},
		historyRepo: &SQLiteHistoryRepository{db: db},
		eventRepo:   &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) User() UserRepository       { return r.userRepo }
func (r *SQLiteRepository) Session() SessionRepository { return r.sessionRepo }
func (r *SQLiteRepository) History() HistoryRepository { return r.historyRepo }
func (r *SQLiteRepository) Event() EventRepository     { return r.eventRepo }

// SQLiteUserRepository handles account storage
type SQLiteUserRepository struct {
	db *store.DB
}

func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users(username,password,role,email,created_at) VALUES(?,?,?,?,?)`,
		user.Username, user.Password, user.Role, user.Email,
		float64(user.CreatedAt.UnixNano())/1e9)
	return err
}

func (r *SQLiteUserRepository) GetUser(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT username,password,role,email,created_at FROM users WHERE username=?`, username)

	var user models.User
	var tsFloat float64
	if err := row.Scan(&user.Username, &user.Password, &user.Role, &user.Email, &tsFloat); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	user.CreatedAt = time.Unix(0, int64(tsFloat*1e9))
	return &user, nil
}

func (r *SQLiteUserRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// SQLiteSessionRepository mirrors the in-memory session table
type SQLiteSessionRepository struct {
	db *store.DB
}

func (r *SQLiteSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions(token,username,created_at,expires_at) VALUES(?,?,?,?)`,
		session.Token, session.Username,
		float64(session.CreatedAt.UnixNano())/1e9,
		float64(session.ExpiresAt.UnixNano())/1e9)
	return err
}

func (r *SQLiteSessionRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

func (r *SQLiteSessionRepository) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token,username,created_at,expires_at FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var s models.Session
		var created, expires float64
		if err := rows.Scan(&s.Token, &s.Username, &created, &expires); err == nil {
			s.CreatedAt = time.Unix(0, int64(created*1e9))
			s.ExpiresAt = time.Unix(0, int64(expires*1e9))
			sessions = append(sessions, &s)
		}
	}
	return sessions, rows.Err()
}

// SQLiteHistoryRepository handles chat-history storage
type SQLiteHistoryRepository struct {
	db *store.DB
}

func (r *SQLiteHistoryRepository) AppendRecords(ctx context.Context, records []*models.ChatHistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO chat_history(id,username,question,answer,sources,is_real_time,ts)
		 VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		sources, _ := json.Marshal(rec.Sources)
		realTime := 0
		if rec.IsRealTime {
			realTime = 1
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Username, rec.Question, rec.Answer,
			string(sources), realTime, float64(rec.Timestamp.UnixNano())/1e9); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteHistoryRepository) GetUserHistory(ctx context.Context, username string, limit, offset int) ([]*models.ChatHistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,username,question,answer,sources,is_real_time,ts FROM chat_history
		 WHERE username=? ORDER BY ts DESC LIMIT ? OFFSET ?`, username, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ChatHistoryRecord
	for rows.Next() {
		var rec models.ChatHistoryRecord
		var sources string
		var realTime int
		var tsFloat float64
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Question, &rec.Answer,
			&sources, &realTime, &tsFloat); err == nil {
			_ = json.Unmarshal([]byte(sources), &rec.Sources)
			rec.IsRealTime = realTime == 1
			rec.Timestamp = time.Unix(0, int64(tsFloat*1e9))
			records = append(records, &rec)
		}
	}
	return records, rows.Err()
}

func (r *SQLiteHistoryRepository) CountUserHistory(ctx context.Context, username string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE username=?`, username).Scan(&n)
	return n, err
}

// Trim drops everything beyond the newest keep records.
func (r *SQLiteHistoryRepository) Trim(ctx context.Context, keep int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE id NOT IN
		 (SELECT id FROM chat_history ORDER BY ts DESC LIMIT ?)`, keep)
	return err
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}
