package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/database"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

// PostgresStore keeps memory in the chatbot schema. Every row is keyed by
// tenant and conversation. Turns get a per-conversation sequence allocated
// under a lock on the conversation row.
type PostgresStore struct {
	db     *sql.DB
	logger logging.Logger
}

func NewPostgresStore(db *sql.DB, logger logging.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) AppendTurns(ctx context.Context, req model.ChatRequest) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		sequence, err := lastSequence(ctx, tx, req.TenantID, req.ConversationID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, turn := range req.Turns {
			sequence++
			if err := insertTurn(ctx, tx, req, uuid.New(), turn.Role, turn.Content, sequence, false, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) StoreAssistantMessage(ctx context.Context, req model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		sequence, err := lastSequence(ctx, tx, req.TenantID, req.ConversationID)
		if err != nil {
			return err
		}
		if err := insertTurn(ctx, tx, req, msg.ID, msg.Role, msg.Content, sequence+1, msg.Streaming, msg.CreatedAt); err != nil {
			return err
		}
		if !persistsWorkflow(wf) {
			return nil
		}
		return saveState(ctx, tx, req.TenantID, req.ConversationID, wf.WorkflowID, wf.Snapshot())
	})
	if err != nil {
		return err
	}
	if persistsWorkflow(wf) {
		s.logger.WithFields(logging.Fields{
			"tenant_id":       req.TenantID,
			"conversation_id": req.ConversationID,
			"workflow_id":     wf.WorkflowID,
		}).Debug("Persisted workflow state")
	}
	return nil
}

func (s *PostgresStore) LoadWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string) (model.WorkflowState, error) {
	var state model.WorkflowState
	var slots []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state, slots, COALESCE(last_response, ''), COALESCE(tool_name, ''), updated_at
		FROM chatbot.workflow_states
		WHERE tenant_id = $1 AND conversation_id = $2 AND workflow_id = $3
	`, tenantID, conversationID, workflowID).Scan(&state.State, &slots, &state.LastResponse, &state.ToolName, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WorkflowState{}, ErrWorkflowStateNotFound
	}
	if err != nil {
		return model.WorkflowState{}, fmt.Errorf("load workflow state: %w", err)
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &state.Slots); err != nil {
			return model.WorkflowState{}, fmt.Errorf("decode workflow slots: %w", err)
		}
	}
	return state, nil
}

func (s *PostgresStore) SaveWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string, state model.WorkflowState) error {
	return saveState(ctx, s.db, tenantID, conversationID, workflowID, state)
}

func (s *PostgresStore) History(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, streaming, created_at
		FROM chatbot.chat_turns
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY sequence
	`, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var msg model.ChatMessage
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Streaming, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		msg.Role = model.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}
	return messages, nil
}

// lastSequence ensures the conversation row exists, locks it for the rest
// of the transaction and returns the highest turn sequence so far.
func lastSequence(ctx context.Context, tx *sql.Tx, tenantID, conversationID string) (int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chatbot.conversations (tenant_id, id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, id) DO NOTHING
	`, tenantID, conversationID); err != nil {
		return 0, fmt.Errorf("ensure conversation: %w", err)
	}

	var id string
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM chatbot.conversations WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, conversationID).Scan(&id); err != nil {
		return 0, fmt.Errorf("lock conversation: %w", err)
	}

	var sequence int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM chatbot.chat_turns WHERE tenant_id = $1 AND conversation_id = $2
	`, tenantID, conversationID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("read turn sequence: %w", err)
	}
	return sequence, nil
}

func insertTurn(ctx context.Context, tx *sql.Tx, req model.ChatRequest, id uuid.UUID, role model.Role, content string, sequence int, streaming bool, createdAt time.Time) error {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chatbot.chat_turns (id, tenant_id, conversation_id, role, content, sequence, streaming, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, req.TenantID, req.ConversationID, string(role), content, sequence, streaming, createdAt); err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

func saveState(ctx context.Context, db database.Execer, tenantID, conversationID, workflowID string, state model.WorkflowState) error {
	slots := state.Slots
	if slots == nil {
		slots = map[string]any{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode workflow slots: %w", err)
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO chatbot.workflow_states (tenant_id, conversation_id, workflow_id, state, slots, last_response, tool_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, conversation_id, workflow_id) DO UPDATE
		SET state = EXCLUDED.state,
			slots = EXCLUDED.slots,
			last_response = EXCLUDED.last_response,
			tool_name = EXCLUDED.tool_name,
			updated_at = EXCLUDED.updated_at
	`, tenantID, conversationID, workflowID, state.State, raw, nullString(state.LastResponse), nullString(state.ToolName), updatedAt); err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
