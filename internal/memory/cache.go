package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const DefaultCacheTTL = 24 * time.Hour

// CachedStore fronts a Service with a Redis copy of workflow checkpoints.
// Saves write the backing store first and then the cache; an assistant
// reply invalidates the cached checkpoint so the next load sees the row the
// backing store wrote. Redis failures only cost the cache.
type CachedStore struct {
	Service
	client goredis.UniversalClient
	ttl    time.Duration
	logger logging.Logger
}

func NewCachedStore(inner Service, client goredis.UniversalClient, ttl time.Duration, logger logging.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Service: inner, client: client, ttl: ttl, logger: logger}
}

// The hash tag keeps one conversation's checkpoints on a single cluster slot.
func cacheKey(tenantID, conversationID, workflowID string) string {
	return fmt.Sprintf("chatbot:workflow:{%s:%s}:%s", tenantID, conversationID, workflowID)
}

func (c *CachedStore) LoadWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string) (model.WorkflowState, error) {
	key := cacheKey(tenantID, conversationID, workflowID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var state model.WorkflowState
		if err := json.Unmarshal(raw, &state); err == nil {
			cacheRequests.WithLabelValues(cacheHit).Inc()
			return state, nil
		}
		c.logger.WithField("key", key).Warn("Discarding undecodable cached workflow state")
		cacheRequests.WithLabelValues(cacheError).Inc()
	case errors.Is(err, goredis.Nil):
		cacheRequests.WithLabelValues(cacheMiss).Inc()
	default:
		c.logger.WithError(err).WithField("key", key).Warn("Workflow cache read failed")
		cacheRequests.WithLabelValues(cacheError).Inc()
	}

	state, err := c.Service.LoadWorkflowState(ctx, tenantID, conversationID, workflowID)
	if err != nil {
		return state, err
	}
	c.put(ctx, key, state)
	return state, nil
}

func (c *CachedStore) SaveWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string, state model.WorkflowState) error {
	if err := c.Service.SaveWorkflowState(ctx, tenantID, conversationID, workflowID, state); err != nil {
		return err
	}
	c.put(ctx, cacheKey(tenantID, conversationID, workflowID), state)
	return nil
}

func (c *CachedStore) StoreAssistantMessage(ctx context.Context, req model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error {
	if err := c.Service.StoreAssistantMessage(ctx, req, msg, wf); err != nil {
		return err
	}
	if persistsWorkflow(wf) {
		key := cacheKey(req.TenantID, req.ConversationID, wf.WorkflowID)
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Workflow cache invalidation failed")
		}
	}
	return nil
}

func (c *CachedStore) put(ctx context.Context, key string, state model.WorkflowState) {
	raw, err := json.Marshal(state)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode workflow state for cache")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Workflow cache write failed")
	}
}
