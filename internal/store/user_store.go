package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/nhle/task-cadence/internal/model"
)

// CreateUser inserts a user. A zero ID lets SQLite assign one; the
// resulting ID is returned.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}

	var id any
	if u.ID != 0 {
		id = u.ID
	}

	res, err := s.q.ExecContext(ctx,
		"INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)",
		id, u.Name, u.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading new user id: %w", err)
	}
	return newID, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.q.QueryRowxContext(ctx,
		"SELECT id, name, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user", strconv.FormatInt(id, 10))
	}
	return &u, nil
}

// CreateJournal inserts a journal, generating a UUID if ID is empty.
func (s *SQLiteStore) CreateJournal(ctx context.Context, j model.Journal) (string, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now()
	}

	_, err := s.q.ExecContext(ctx,
		"INSERT INTO journals (id, user_id, title, created_at) VALUES (?, ?, ?, ?)",
		j.ID, j.UserID, j.Title, j.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("creating journal: %w", err)
	}
	return j.ID, nil
}

// JournalBelongsTo reports whether journalID exists and is owned by userID.
func (s *SQLiteStore) JournalBelongsTo(ctx context.Context, journalID string, userID int64) (bool, error) {
	var n int
	err := s.q.QueryRowxContext(ctx,
		"SELECT COUNT(*) FROM journals WHERE id = ? AND user_id = ?",
		journalID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking journal %s ownership: %w", journalID, err)
	}
	return n > 0, nil
}
