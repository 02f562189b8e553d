package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ahabibm4/chatbot/internal/model"
)

func newCachedStore(t *testing.T) (*CachedStore, *InMemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inner := NewInMemoryStore()
	return NewCachedStore(inner, client, time.Hour, testLogger()), inner, mr
}

func TestCachedStoreWritesThrough(t *testing.T) {
	ctx := context.Background()
	store, inner, mr := newCachedStore(t)
	key := cacheKey("acme", "conv-1", "TRACK_JOB")

	state := model.WorkflowState{State: "TRACK_COLLECT_JOB_ID", Slots: map[string]any{}}
	if err := store.SaveWorkflowState(ctx, "acme", "conv-1", "TRACK_JOB", state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("expected cached checkpoint")
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	if _, err := inner.LoadWorkflowState(ctx, "acme", "conv-1", "TRACK_JOB"); err != nil {
		t.Fatalf("backing store must hold the checkpoint: %v", err)
	}

	// Changing the backing store behind the cache proves reads are served from Redis.
	_ = inner.SaveWorkflowState(ctx, "acme", "conv-1", "TRACK_JOB", model.WorkflowState{State: "TRACK_READY"})
	hitsBefore := testutil.ToFloat64(cacheRequests.WithLabelValues(cacheHit))
	got, err := store.LoadWorkflowState(ctx, "acme", "conv-1", "TRACK_JOB")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != "TRACK_COLLECT_JOB_ID" {
		t.Fatalf("expected cached state, got %s", got.State)
	}
	if delta := testutil.ToFloat64(cacheRequests.WithLabelValues(cacheHit)) - hitsBefore; delta != 1 {
		t.Fatalf("expected one cache hit, got %v", delta)
	}
}

func TestCachedStoreMissPopulatesCache(t *testing.T) {
	ctx := context.Background()
	store, inner, mr := newCachedStore(t)
	_ = inner.SaveWorkflowState(ctx, "acme", "conv-2", "CREATE_TICKET", model.WorkflowState{State: "TICKET_COLLECT_SUMMARY"})

	got, err := store.LoadWorkflowState(ctx, "acme", "conv-2", "CREATE_TICKET")
	if err != nil || got.State != "TICKET_COLLECT_SUMMARY" {
		t.Fatalf("unexpected load %+v %v", got, err)
	}
	if !mr.Exists(cacheKey("acme", "conv-2", "CREATE_TICKET")) {
		t.Fatal("miss should populate the cache")
	}

	if _, err := store.LoadWorkflowState(ctx, "acme", "conv-2", "TRACK_JOB"); !errors.Is(err, ErrWorkflowStateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCachedStoreInvalidatesOnAssistantMessage(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newCachedStore(t)
	req := rescheduleRequest()

	_ = store.SaveWorkflowState(ctx, req.TenantID, req.ConversationID, "RESCHEDULE_DELIVERY", model.WorkflowState{State: "RESCHEDULE_COLLECT_WINDOW"})
	reply := model.NewChatMessage(model.RoleAssistant, "I'll take care of that reschedule.", true)
	if err := store.StoreAssistantMessage(ctx, req, reply, readyResult()); err != nil {
		t.Fatalf("store: %v", err)
	}
	if mr.Exists(cacheKey(req.TenantID, req.ConversationID, "RESCHEDULE_DELIVERY")) {
		t.Fatal("assistant reply should invalidate the cached checkpoint")
	}

	got, err := store.LoadWorkflowState(ctx, req.TenantID, req.ConversationID, "RESCHEDULE_DELIVERY")
	if err != nil || got.State != "RESCHEDULE_READY" || got.LastResponse != reply.Content {
		t.Fatalf("expected backing checkpoint, got %+v %v", got, err)
	}
}

func TestCachedStoreSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	store, inner, mr := newCachedStore(t)
	_ = inner.SaveWorkflowState(ctx, "acme", "conv-3", "TRACK_JOB", model.WorkflowState{State: "TRACK_READY"})
	mr.Close()

	got, err := store.LoadWorkflowState(ctx, "acme", "conv-3", "TRACK_JOB")
	if err != nil || got.State != "TRACK_READY" {
		t.Fatalf("expected fallback to backing store, got %+v %v", got, err)
	}
	if err := store.SaveWorkflowState(ctx, "acme", "conv-3", "TRACK_JOB", model.WorkflowState{State: "TRACK_COLLECT_JOB_ID"}); err != nil {
		t.Fatalf("cache outage must not fail saves: %v", err)
	}
}

func TestCachedStoreKeysByTenant(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newCachedStore(t)

	_ = store.SaveWorkflowState(ctx, "acme", "conv-4", "TRACK_JOB", model.WorkflowState{State: "TRACK_READY"})
	if mr.Exists(cacheKey("globex", "conv-4", "TRACK_JOB")) {
		t.Fatal("checkpoint leaked into another tenant's key")
	}
	if _, err := store.LoadWorkflowState(ctx, "globex", "conv-4", "TRACK_JOB"); !errors.Is(err, ErrWorkflowStateNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
}
