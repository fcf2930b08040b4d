package user

import (
	"context"
	"log/slog"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/platform/events"
)

// directory implements domain.UserDirectory on top of a domain.UserStore.
type directory struct {
	store  domain.UserStore
	events domain.UserEvents
	logger *slog.Logger
}

// NewDirectory creates a UserDirectory. A nil events publisher disables
// lifecycle notifications and a nil logger uses slog.Default.
func NewDirectory(store domain.UserStore, ev domain.UserEvents, logger *slog.Logger) domain.UserDirectory {
	if ev == nil {
		ev = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &directory{store: store, events: ev, logger: logger}
}

// Create persists a user with the given fields. It performs no validation;
// callers validate their input first.
func (d *directory) Create(ctx context.Context, name, email string, status bool) (*domain.User, error) {
	user := &domain.User{Name: name, Email: email, Status: status}
	if err := d.store.Create(ctx, user); err != nil {
		return nil, err
	}
	d.events.UserCreated(ctx, user)
	return user, nil
}

// FindAll returns one page of users together with the listing metadata.
func (d *directory) FindAll(ctx context.Context, req domain.PaginationRequest) (*domain.Page[domain.User], error) {
	if req.Page < 1 || req.Limit < 1 {
		return nil, domain.NewAppError(domain.CodeValidation, "page and limit must be positive integers", nil)
	}

	total, err := d.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	users, err := d.store.FindMany(ctx, req.Offset(), req.Limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}

	return &domain.Page[domain.User]{
		Data: users,
		Metadata: domain.PageMetadata{
			TotalPages: total,
			Page:       req.Page,
			LastPages:  lastPage(total, req.Limit),
		},
	}, nil
}

// FindOne returns the user with the given id.
func (d *directory) FindOne(ctx context.Context, id string) (*domain.User, error) {
	user, err := d.store.FindFirst(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.UserNotFound(id)
	}
	return user, nil
}

// Update applies patch to the user with the given id. The id carried inside
// patch is ignored. Any failure to load the user is reported as not found.
func (d *directory) Update(ctx context.Context, id string, patch domain.UpdateUserInput) (*domain.User, error) {
	if _, err := d.FindOne(ctx, id); err != nil {
		if !domain.IsNotFound(err) {
			d.logger.WarnContext(ctx, "lookup before update failed", slog.String("user_id", id), slog.Any("error", err))
		}
		return nil, domain.UserNotFound(id)
	}

	user, err := d.store.Update(ctx, id, patch.Fields())
	if err != nil {
		return nil, err
	}
	d.events.UserUpdated(ctx, user)
	return user, nil
}

// Remove soft-deletes the user by clearing its status. It does not check for
// existence first, so removing an already removed user succeeds again.
func (d *directory) Remove(ctx context.Context, id string) (*domain.User, error) {
	user, err := d.store.Update(ctx, id, map[string]any{"status": false})
	if err != nil {
		return nil, err
	}
	d.events.UserDeleted(ctx, user)
	return user, nil
}

// lastPage returns ceil(total/limit).
func lastPage(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	l := int64(limit)
	return int((total + l - 1) / l)
}
