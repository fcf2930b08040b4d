package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simp-lee/usersvc/internal/domain"
)

// Publisher appends events to a Redis stream. It implements domain.UserEvents;
// publish failures are logged and never returned to the caller.
type Publisher struct {
	client redis.Cmdable
	stream string
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.UserEvents = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to stream (UserEventsStream when empty).
func NewPublisher(client redis.Cmdable, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = UserEventsStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish appends a single event of eventType carrying data.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	eventJSON, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: p.now(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: []any{"event", string(eventJSON)},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// UserCreated publishes a user.created event.
func (p *Publisher) UserCreated(ctx context.Context, user *domain.User) {
	p.publishUser(ctx, UserCreated, user)
}

// UserUpdated publishes a user.updated event.
func (p *Publisher) UserUpdated(ctx context.Context, user *domain.User) {
	p.publishUser(ctx, UserUpdated, user)
}

// UserDeleted publishes a user.deleted event.
func (p *Publisher) UserDeleted(ctx context.Context, user *domain.User) {
	p.publishUser(ctx, UserDeleted, user)
}

func (p *Publisher) publishUser(ctx context.Context, eventType string, user *domain.User) {
	if user == nil {
		return
	}
	err := p.Publish(ctx, eventType, NewUserEvent(user))
	if err != nil {
		p.logger.ErrorContext(ctx, "event publish failed",
			slog.String("type", eventType),
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

// NewUserEvent builds the event payload for user.
func NewUserEvent(user *domain.User) UserEvent {
	return UserEvent{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Status: user.Status,
	}
}

// Noop discards every event. It is used when publishing is disabled.
type Noop struct{}

var _ domain.UserEvents = Noop{}

func (Noop) UserCreated(context.Context, *domain.User) {}
func (Noop) UserUpdated(context.Context, *domain.User) {}
func (Noop) UserDeleted(context.Context, *domain.User) {}
