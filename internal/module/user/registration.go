package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/simp-lee/usersvc/internal/domain"
)

var errNoSession = errors.New("auth service returned no session")

// registrar implements domain.UserRegistrar. It registers the user with the
// auth service first and only then stores the local record.
type registrar struct {
	auth      domain.AuthService
	directory domain.UserDirectory
	logger    *slog.Logger
}

// NewRegistrar creates a UserRegistrar. A nil logger uses slog.Default.
func NewRegistrar(auth domain.AuthService, dir domain.UserDirectory, logger *slog.Logger) domain.UserRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &registrar{auth: auth, directory: dir, logger: logger}
}

// Create registers the user remotely and persists it locally. The password
// is sent to the auth service only. Errors that are already *domain.AppError
// are returned as is; anything else becomes an internal error.
//
// A local failure after a successful remote registration is not compensated.
func (r *registrar) Create(ctx context.Context, input domain.CreateUserInput) (*domain.RegisteredUser, error) {
	status := true
	if input.Status != nil {
		status = *input.Status
	}

	session, err := r.auth.RegisterUser(ctx, domain.RegisterUserRequest{
		Email:    input.Email,
		Name:     input.Name,
		Password: input.Password,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "auth registration failed", slog.String("email", input.Email), slog.Any("error", err))
		return nil, classify(err)
	}
	if session == nil {
		return nil, domain.NewInternalError(errNoSession)
	}

	user, err := r.directory.Create(ctx, input.Name, input.Email, status)
	if err != nil {
		r.logger.ErrorContext(ctx, "user registered with auth service but not stored",
			slog.String("email", input.Email),
			slog.Any("error", err),
		)
		return nil, classify(err)
	}

	r.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID))
	return &domain.RegisteredUser{Data: user, Token: session.Token}, nil
}

func classify(err error) error {
	if appErr, ok := domain.AsAppError(err); ok {
		return appErr
	}
	return domain.NewInternalError(err)
}
