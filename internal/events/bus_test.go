package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	require.NoError(t, client.Ping(context.Background()).Err())

	return client, mr
}

func TestRedisBus_StatusCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	bus := NewRedisBus(client, zerolog.Nop())
	ctx := context.Background()

	t.Run("unknown project has empty status", func(t *testing.T) {
		s, err := bus.LastStatus(ctx, "uml-00000-0000")
		require.NoError(t, err)
		assert.Empty(t, s)
	})

	t.Run("status events are cached with a ttl", func(t *testing.T) {
		bus.Publish(ctx, Event{Type: TypeStatus, ProjectID: "uml-11111-1111", Status: "PENDING"})
		bus.Publish(ctx, Event{Type: TypeStatus, ProjectID: "uml-11111-1111", Status: "DONE"})

		s, err := bus.LastStatus(ctx, "uml-11111-1111")
		require.NoError(t, err)
		assert.Equal(t, "DONE", s)
		assert.True(t, mr.TTL("uml:status:uml-11111-1111") > 0)
	})

	t.Run("non-status events leave the cache alone", func(t *testing.T) {
		bus.Publish(ctx, Event{Type: TypeDiagramReady, ProjectID: "uml-11111-1111", DiagramID: "dgm_1"})

		s, err := bus.LastStatus(ctx, "uml-11111-1111")
		require.NoError(t, err)
		assert.Equal(t, "DONE", s)
	})

	t.Run("delete clears the cache", func(t *testing.T) {
		bus.Publish(ctx, Event{Type: TypeDeleted, ProjectID: "uml-11111-1111"})

		s, err := bus.LastStatus(ctx, "uml-11111-1111")
		require.NoError(t, err)
		assert.Empty(t, s)
	})
}

func TestRedisBus_Subscribe(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	bus := NewRedisBus(client, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, closeSub, err := bus.Subscribe(ctx, "uml-22222-2222")
	require.NoError(t, err)
	defer closeSub()

	bus.Publish(ctx, Event{Type: TypeVersionCreated, ProjectID: "uml-22222-2222", DiagramID: "dgm_1", VersionID: "dver_2"})
	bus.Publish(ctx, Event{Type: TypeVersionCreated, ProjectID: "uml-33333-3333", DiagramID: "dgm_other"})

	select {
	case ev := <-ch:
		assert.Equal(t, TypeVersionCreated, ev.Type)
		assert.Equal(t, "dgm_1", ev.DiagramID)
		assert.Equal(t, "dver_2", ev.VersionID)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for another project: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
