package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatgroup/backend/internal/domain/chat"
)

// ChatRepository 群聊 SQLite 仓储
// 实现 chat.Repository，并提供会话和智能体的管理操作
type ChatRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ chat.AdminRepository = (*ChatRepository)(nil)

// NewChatRepository 创建群聊仓储实例，确保表结构存在
func NewChatRepository(db *sql.DB) (*ChatRepository, error) {
	if err := initChatTables(db); err != nil {
		return nil, err
	}
	return &ChatRepository{db: db, now: time.Now}, nil
}

// initChatTables 初始化群聊相关表
func initChatTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			summary_text TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			sender_id TEXT,
			content TEXT NOT NULL,
			mentions TEXT NOT NULL DEFAULT '[]',
			meta TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at, seq);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to init chat tables: %w", err)
		}
	}
	return nil
}

// FindMessagesBySession 按创建时间升序返回会话的全部消息
func (r *ChatRepository) FindMessagesBySession(ctx context.Context, sessionID string) ([]*chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, sender_type, sender_id, content, mentions, meta, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, storageError("query messages", err)
	}
	defer rows.Close()

	messages := make([]*chat.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate messages", err)
	}
	return messages, nil
}

// FindAllAgents 返回全部智能体
func (r *ChatRepository) FindAllAgents(ctx context.Context) ([]*chat.Agent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM chat_agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, storageError("query agents", err)
	}
	defer rows.Close()

	agents := make([]*chat.Agent, 0)
	for rows.Next() {
		var agent chat.Agent
		var createdAt int64
		if err := rows.Scan(&agent.ID, &agent.Name, &createdAt); err != nil {
			return nil, storageError("scan agent", err)
		}
		agent.CreatedAt = time.UnixMilli(createdAt)
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate agents", err)
	}
	return agents, nil
}

// FindAgentByID 根据 ID 查找智能体，不存在时返回 nil, nil
func (r *ChatRepository) FindAgentByID(ctx context.Context, id string) (*chat.Agent, error) {
	var agent chat.Agent
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM chat_agents WHERE id = ?`, id).
		Scan(&agent.ID, &agent.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("query agent", err)
	}
	agent.CreatedAt = time.UnixMilli(createdAt)
	return &agent, nil
}

// FindSessionByID 根据 ID 查找会话，不存在时返回 nil, nil
func (r *ChatRepository) FindSessionByID(ctx context.Context, id string) (*chat.Session, error) {
	var session chat.Session
	var status string
	var summary sql.NullString
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, status, summary_text, created_at, updated_at
		FROM chat_sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Title, &status, &summary, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("query session", err)
	}

	session.Status = chat.SessionStatus(status)
	if summary.Valid {
		text := summary.String
		session.SummaryText = &text
	}
	session.CreatedAt = time.UnixMilli(createdAt)
	session.UpdatedAt = time.UnixMilli(updatedAt)
	return &session, nil
}

// TouchSession 刷新会话的最后活跃时间
func (r *ChatRepository) TouchSession(ctx context.Context, id string) error {
	return r.updateSession(ctx, "touch session", `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		r.now().UnixMilli(), id)
}

// CreateMessage 以指定 ID 插入消息
func (r *ChatRepository) CreateMessage(ctx context.Context, draft *chat.MessageDraft, id string) (*chat.Message, error) {
	mentions := draft.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	mentionsJSON, err := json.Marshal(mentions)
	if err != nil {
		return nil, storageError("encode mentions", err)
	}
	metaJSON, err := json.Marshal(draft.Meta)
	if err != nil {
		return nil, storageError("encode meta", err)
	}

	createdAt := r.now()
	var senderID sql.NullString
	if draft.SenderID != nil {
		senderID = sql.NullString{String: *draft.SenderID, Valid: true}
	}

	err = retryOnConflict(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO chat_messages (id, session_id, sender_type, sender_id, content, mentions, meta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, draft.SessionID, string(draft.SenderType), senderID, draft.Content,
			string(mentionsJSON), string(metaJSON), createdAt.UnixMilli())
		return err
	})
	if err != nil {
		return nil, storageError("insert message", err)
	}

	return &chat.Message{
		ID:         id,
		SessionID:  draft.SessionID,
		SenderType: draft.SenderType,
		SenderID:   draft.SenderID,
		Content:    draft.Content,
		Mentions:   mentions,
		Meta:       draft.Meta,
		CreatedAt:  time.UnixMilli(createdAt.UnixMilli()),
	}, nil
}

// SaveSession 保存会话（插入或更新），ID 为空时生成新 UUID
func (r *ChatRepository) SaveSession(ctx context.Context, session *chat.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = chat.SessionActive
	}
	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	var summary sql.NullString
	if session.SummaryText != nil {
		summary = sql.NullString{String: *session.SummaryText, Valid: true}
	}

	err := retryOnConflict(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO chat_sessions (id, title, status, summary_text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				status = excluded.status,
				summary_text = excluded.summary_text,
				updated_at = excluded.updated_at`,
			session.ID, session.Title, string(session.Status), summary,
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return storageError("save session", err)
	}
	return nil
}

// UpdateSessionStatus 更新会话状态
func (r *ChatRepository) UpdateSessionStatus(ctx context.Context, id string, status chat.SessionStatus) error {
	return r.updateSession(ctx, "update session status",
		`UPDATE chat_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), r.now().UnixMilli(), id)
}

// SaveAgent 保存智能体（插入或更新），ID 为空时生成新 UUID
func (r *ChatRepository) SaveAgent(ctx context.Context, agent *chat.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = r.now()
	}

	err := retryOnConflict(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO chat_agents (id, name, created_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
			agent.ID, agent.Name, agent.CreatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return storageError("save agent", err)
	}
	return nil
}

// DeleteSession 删除会话及其全部消息
func (r *ChatRepository) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin delete session", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return storageError("delete session messages", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return storageError("delete session", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit delete session", err)
	}
	return nil
}

// updateSession 执行单行会话更新，会话不存在时返回 ErrSessionNotFound
func (r *ChatRepository) updateSession(ctx context.Context, op, query string, args ...any) error {
	var result sql.Result
	err := retryOnConflict(ctx, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return storageError(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageError(op, err)
	}
	if affected == 0 {
		id, _ := args[len(args)-1].(string)
		return fmt.Errorf("%w: %s", chat.ErrSessionNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var msg chat.Message
	var senderType string
	var senderID sql.NullString
	var mentionsJSON, metaJSON string
	var createdAt int64

	if err := row.Scan(&msg.ID, &msg.SessionID, &senderType, &senderID, &msg.Content, &mentionsJSON, &metaJSON, &createdAt); err != nil {
		return nil, storageError("scan message", err)
	}

	msg.SenderType = chat.SenderType(senderType)
	if senderID.Valid {
		id := senderID.String
		msg.SenderID = &id
	}
	if err := json.Unmarshal([]byte(mentionsJSON), &msg.Mentions); err != nil {
		return nil, storageError("decode mentions", err)
	}
	if msg.Mentions == nil {
		msg.Mentions = []string{}
	}
	if err := json.Unmarshal([]byte(metaJSON), &msg.Meta); err != nil {
		return nil, storageError("decode meta", err)
	}
	msg.CreatedAt = time.UnixMilli(createdAt)
	return &msg, nil
}

// storageError 把驱动错误包装为 chat.ErrStorage
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStorage, op, err)
}
