package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/repwise/repwise/internal/model"
)

// Conversation retrieves a conversation by id, enforcing ownership.
func (s *Store) Conversation(ctx context.Context, scope Scope, conversationID uuid.UUID) (*model.Conversation, error) {
	var (
		c     model.Conversation
		title *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, config_name, status, created_at
		FROM conversations
		WHERE id = $1
	`, conversationID).Scan(&c.ID, &c.UserID, &title, &c.ConfigName, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		return nil, fmt.Errorf("querying conversation %s: %w", conversationID, err)
	}
	if title != nil {
		c.Title = *title
	}
	if !scope.allows(c.UserID) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrScopeViolation)
	}
	return &c, nil
}

// GetOrCreateConversation loads a conversation, creating an active row
// with the given id when none exists yet. The websocket handler calls
// this on connect so a fresh conversation id from the client is valid.
func (s *Store) GetOrCreateConversation(ctx context.Context, scope Scope, conversationID, userID uuid.UUID) (*model.Conversation, error) {
	if !scope.allows(userID) {
		return nil, fmt.Errorf("conversation for %s: %w", userID, ErrScopeViolation)
	}

	c, err := s.Conversation(ctx, scope, conversationID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var created model.Conversation
	err = s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, config_name, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET config_name = conversations.config_name
		RETURNING id, user_id, config_name, status, created_at
	`, conversationID, userID, "unified_coach", model.ConversationActive).
		Scan(&created.ID, &created.UserID, &created.ConfigName, &created.Status, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation %s: %w", conversationID, err)
	}

	s.logger.Debug("created conversation", "conversation_id", conversationID, "user_id", userID)
	return &created, nil
}

// Messages loads a conversation's messages in sequence order.
func (s *Store) Messages(ctx context.Context, scope Scope, conversationID uuid.UUID) ([]model.Message, error) {
	// Ownership check rides on the conversation row.
	if _, err := s.Conversation(ctx, scope, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, sequence_number, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY sequence_number ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// AppendMessages adds messages to a conversation in one transaction,
// assigning sequential sequence numbers. The conversation row is locked
// to keep numbering dense under concurrent writers.
func (s *Store) AppendMessages(ctx context.Context, scope Scope, conversationID uuid.UUID, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if _, err := s.Conversation(ctx, scope, conversationID); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	// Lock the conversation row to serialize sequence assignment.
	if _, err := tx.Exec(ctx, `
		SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE
	`, conversationID); err != nil {
		return fmt.Errorf("locking conversation %s: %w", conversationID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM conversation_messages
		WHERE conversation_id = $1
	`, conversationID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("querying max sequence for %s: %w", conversationID, err)
	}

	for i := range msgs {
		m := &msgs[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ConversationID = conversationID
		m.SequenceNumber = maxSeq + i + 1
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_messages (id, conversation_id, role, content, sequence_number)
			VALUES ($1, $2, $3, $4, $5)
		`, m.ID, conversationID, m.Role, m.Content, m.SequenceNumber); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}

	s.logger.Debug("appended messages", "conversation_id", conversationID, "count", len(msgs))
	return nil
}
