// Package storage is the sqlite implementation of store.Backend.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/store"
)

// FileName is the database file inside the data directory.
const FileName = "agentcore.db"

type Storage struct {
	db   *sql.DB
	path string
	log  *logging.Logger
	now  func() time.Time
}

var _ store.Backend = (*Storage)(nil)

// New opens (and creates) the database in dataDir.
func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return Open(filepath.Join(dataDir, FileName))
}

// Open opens the database at path.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer keeps WAL contention out of the way
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, path: path, log: logging.New("storage"), now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		provider TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		data_json TEXT NOT NULL,
		PRIMARY KEY (conversation_id, seq),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL COLLATE NOCASE UNIQUE,
		context TEXT NOT NULL,
		content TEXT NOT NULL,
		skill_type TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_conversation ON executions(conversation_id, started_at DESC);

	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		message_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		remind_at DATETIME NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		notified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(completed, notified, remind_at);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL,
		message_id TEXT NOT NULL DEFAULT '',
		remind_at DATETIME,
		snoozed_until DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);

	CREATE TABLE IF NOT EXISTS relationships (
		chat_id TEXT PRIMARY KEY,
		integration_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// limitClause renders a Filter. sqlite needs a LIMIT before any OFFSET.
func limitClause(f store.Filter) (string, []any) {
	switch {
	case f.Limit > 0:
		return " LIMIT ? OFFSET ?", []any{f.Limit, f.Offset}
	case f.Offset > 0:
		return " LIMIT -1 OFFSET ?", []any{f.Offset}
	}
	return "", nil
}

// KV operations

func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NewNotFoundError("key", key)
	}
	return value, err
}

func (s *Storage) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Conversation operations

// SaveConversation replaces the conversation and all of its messages.
func (s *Storage) SaveConversation(ctx context.Context, c *domain.AgentConversation) error {
	if c == nil || c.ID == "" {
		return store.ErrInvalidID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			provider = excluded.provider,
			updated_at = excluded.updated_at
	`, c.ID, c.Title, string(c.Provider), c.CreatedAt.UTC(), c.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range c.Messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, data_json) VALUES (?, ?, ?, ?, ?)
		`, m.ID, c.ID, i, string(m.Role), string(data)); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) GetConversation(ctx context.Context, id string) (*domain.AgentConversation, error) {
	var c domain.AgentConversation
	var provider string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, provider, created_at, updated_at FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &provider, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewNotFoundError("conversation", id)
	}
	if err != nil {
		return nil, err
	}
	c.Provider = domain.ProviderID(provider)

	msgs, err := s.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return &c, nil
}

func (s *Storage) messages(ctx context.Context, conversationID string) ([]domain.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_json FROM messages WHERE conversation_id = ? ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m domain.AgentMessage
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) ListConversations(ctx context.Context, f store.Filter) ([]*domain.AgentConversation, error) {
	clause, args := limitClause(f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM conversations ORDER BY updated_at DESC, id DESC`+clause, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// the single connection is free again once rows is closed
	out := make([]*domain.AgentConversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Storage) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.NewNotFoundError("conversation", id)
	}
	return nil
}

// Skill operations

func (s *Storage) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, context, content, skill_type, is_active, created_at, updated_at
		FROM skills ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSkill(row scanner) (*domain.Skill, error) {
	var sk domain.Skill
	var skillType string
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Context, &sk.Content, &skillType, &sk.IsActive, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
		return nil, err
	}
	sk.Type = domain.SkillType(skillType)
	return &sk, nil
}

func (s *Storage) GetSkill(ctx context.Context, id string) (*domain.Skill, error) {
	sk, err := scanSkill(s.db.QueryRowContext(ctx, `
		SELECT id, name, context, content, skill_type, is_active, created_at, updated_at
		FROM skills WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewNotFoundError("skill", id)
	}
	return sk, err
}

func (s *Storage) SaveSkill(ctx context.Context, sk *domain.Skill) error {
	if sk == nil || sk.ID == "" {
		return store.ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, name, context, content, skill_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			context = excluded.context,
			content = excluded.content,
			skill_type = excluded.skill_type,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, sk.ID, sk.Name, sk.Context, sk.Content, string(sk.Type), sk.IsActive, sk.CreatedAt.UTC(), sk.UpdatedAt.UTC())
	if isUnique(err) {
		return &store.DuplicateError{Entity: "skill", Key: sk.Name}
	}
	return err
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *Storage) DeleteSkill(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.NewNotFoundError("skill", id)
	}
	return nil
}

// Execution operations

func (s *Storage) SaveExecution(ctx context.Context, e *domain.AgentExecution) error {
	if e == nil || e.ID == "" {
		return store.ErrInvalidID
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, conversation_id, status, started_at, data_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data_json = excluded.data_json
	`, e.ID, e.ConversationID, string(e.Status), e.StartedAt.UTC(), string(data))
	return err
}

func (s *Storage) GetExecution(ctx context.Context, id string) (*domain.AgentExecution, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM executions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewNotFoundError("execution", id)
	}
	if err != nil {
		return nil, err
	}
	var e domain.AgentExecution
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &e, nil
}

func (s *Storage) ListExecutions(ctx context.Context, conversationID string, f store.Filter) ([]*domain.AgentExecution, error) {
	query := `SELECT data_json FROM executions`
	var args []any
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY started_at DESC`
	clause, limitArgs := limitClause(f)
	rows, err := s.db.QueryContext(ctx, query+clause, append(args, limitArgs...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AgentExecution
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.AgentExecution
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			s.log.Warn("execution_corrupt", nil, err)
			continue
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
