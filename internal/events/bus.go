// Package events fans project progress out over Redis Pub/Sub so pollers
// and SSE clients can follow a generation without hitting Postgres.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	eventChannelPrefix = "uml:events:" // Pub/Sub channel per project: uml:events:{project_id}
	statusKeyPrefix    = "uml:status:" // Last known status per project: uml:status:{project_id}
	statusTTL          = 24 * time.Hour
)

type Type string

const (
	TypeStatus          Type = "status"
	TypeDiagramReady    Type = "diagram_ready"
	TypeRenderDegraded  Type = "render_degraded"
	TypeKindsMismatch   Type = "kinds_mismatch"
	TypeVersionCreated  Type = "version_created"
	TypeVersionSwitched Type = "version_switched"
	TypeDeleted         Type = "deleted"
)

// Event is one progress notification for a project.
type Event struct {
	Type      Type      `json:"type"`
	ProjectID string    `json:"project_id"`
	DiagramID string    `json:"diagram_id,omitempty"`
	VersionID string    `json:"version_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// RedisBus publishes and subscribes to project events.
type RedisBus struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisBus(client *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, log: log.With().Str("component", "events").Logger()}
}

// Publish is best effort: failures are logged, never returned.
func (b *RedisBus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("project_id", ev.ProjectID).Msg("marshal event")
		return
	}

	pipe := b.client.Pipeline()
	if ev.Type == TypeStatus && ev.Status != "" {
		pipe.Set(ctx, statusKey(ev.ProjectID), ev.Status, statusTTL)
	}
	if ev.Type == TypeDeleted {
		pipe.Del(ctx, statusKey(ev.ProjectID))
	}
	pipe.Publish(ctx, eventChannel(ev.ProjectID), data)

	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warn().Err(err).
			Str("project_id", ev.ProjectID).
			Str("type", string(ev.Type)).
			Msg("publish event failed")
	}
}

// LastStatus returns the cached status of a project, or "" when unknown.
func (b *RedisBus) LastStatus(ctx context.Context, projectID string) (string, error) {
	s, err := b.client.Get(ctx, statusKey(projectID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return s, nil
}

// Subscribe streams events for one project until ctx is done or the
// returned close func is called.
func (b *RedisBus) Subscribe(ctx context.Context, projectID string) (<-chan Event, func() error, error) {
	sub := b.client.Subscribe(ctx, eventChannel(projectID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn().Err(err).Str("channel", m.Channel).Msg("drop malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close, nil
}

// Nop discards events. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func eventChannel(projectID string) string {
	return fmt.Sprintf("%s%s", eventChannelPrefix, projectID)
}

func statusKey(projectID string) string {
	return fmt.Sprintf("%s%s", statusKeyPrefix, projectID)
}
