package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/briefops/briefer/internal/brief"
)

// Store is the Postgres-backed history collaborator: users, saved
// briefs and conversation turns, plus standing topics for the
// scheduler.
type Store struct {
	DB *sql.DB
}

// New opens a Postgres connection and verifies it.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// CreateUser inserts a new user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, NOW())`,
		uuid.NewString(), email, passwordHash)
	return err
}

// GetUserByEmail returns the user's id and password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// BriefRecord is a stored brief plus its row metadata.
type BriefRecord struct {
	ID        string
	UserID    string
	Topic     string
	Depth     string
	Brief     brief.FinalBrief
	CreatedAt time.Time
}

// SaveBrief appends one generated brief to the user's history.
func (s *Store) SaveBrief(ctx context.Context, userID, depth string, b brief.FinalBrief) (string, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal brief: %w", err)
	}
	id := uuid.NewString()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO briefs (id, user_id, topic, depth, brief, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, userID, b.Topic, depth, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetBrief fetches one stored brief by id.
func (s *Store) GetBrief(ctx context.Context, id string) (BriefRecord, error) {
	var rec BriefRecord
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, topic, depth, brief, created_at FROM briefs WHERE id = $1`, id).
		Scan(&rec.ID, &rec.UserID, &rec.Topic, &rec.Depth, &payload, &rec.CreatedAt)
	if err != nil {
		return BriefRecord{}, err
	}
	if err := json.Unmarshal(payload, &rec.Brief); err != nil {
		return BriefRecord{}, fmt.Errorf("unmarshal brief %s: %w", id, err)
	}
	return rec, nil
}

// GetRecentBriefs returns up to limit of the user's most recent briefs
// in ascending creation order, so the most recent entry is last. This
// is the canonical history order the pipeline slices from the tail.
func (s *Store) GetRecentBriefs(ctx context.Context, userID string, limit int) ([]brief.FinalBrief, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT brief FROM (
  SELECT brief, created_at FROM briefs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
) recent ORDER BY created_at ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []brief.FinalBrief
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var b brief.FinalBrief
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("unmarshal stored brief: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteUserBriefs removes a user's entire brief history and returns
// the number of rows deleted.
func (s *Store) DeleteUserBriefs(ctx context.Context, userID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM briefs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UserStats summarizes a user's research history.
type UserStats struct {
	UserID      string     `json:"user_id"`
	BriefCount  int        `json:"brief_count"`
	TopicCount  int        `json:"topic_count"`
	LastBriefAt *time.Time `json:"last_brief_at,omitempty"`
}

// GetUserStats aggregates brief and distinct topic counts.
func (s *Store) GetUserStats(ctx context.Context, userID string) (UserStats, error) {
	stats := UserStats{UserID: userID}
	var last sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT topic), MAX(created_at) FROM briefs WHERE user_id = $1`, userID).
		Scan(&stats.BriefCount, &stats.TopicCount, &last)
	if err != nil {
		return UserStats{}, err
	}
	if last.Valid {
		stats.LastBriefAt = &last.Time
	}
	return stats, nil
}

// Conversation is one request turn in a user's research dialogue.
type Conversation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Topic      string    `json:"topic"`
	IsFollowUp bool      `json:"is_follow_up"`
	BriefID    string    `json:"brief_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveConversation records one request turn linked to its brief.
func (s *Store) SaveConversation(ctx context.Context, userID, topic string, followUp bool, briefID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, topic, is_follow_up, brief_id, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.NewString(), userID, topic, followUp, briefID)
	return err
}

// ListConversations returns a user's turns, oldest first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, topic, is_follow_up, brief_id, created_at FROM conversations
WHERE user_id = $1 ORDER BY created_at ASC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Topic, &c.IsFollowUp, &c.BriefID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Topic is a standing research topic the scheduler refreshes on a cron
// schedule.
type Topic struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Depth        string    `json:"depth"`
	ScheduleCron string    `json:"schedule_cron"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateTopic registers a standing topic.
func (s *Store) CreateTopic(ctx context.Context, userID, name, depth, scheduleCron string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO topics (id, user_id, name, depth, schedule_cron, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, userID, name, depth, scheduleCron)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListAllTopics returns every standing topic, for the scheduler tick.
func (s *Store) ListAllTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, name, depth, schedule_cron, created_at FROM topics ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Depth, &t.ScheduleCron, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestBriefTime returns when a user last generated a brief for a
// topic name, or nil when none exists.
func (s *Store) LatestBriefTime(ctx context.Context, userID, topic string) (*time.Time, error) {
	var last sql.NullTime
	err := s.DB.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM briefs WHERE user_id = $1 AND topic = $2`, userID, topic).Scan(&last)
	if err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}
