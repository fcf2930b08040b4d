package authclient

import (
	"context"
	"fmt"

	"github.com/simp-lee/usersvc/internal/domain"
)

// DefaultRegisterPattern is the message pattern the auth service answers for registrations.
const DefaultRegisterPattern = "auth.register.user"

// Sender sends a request message and decodes the reply into out.
type Sender interface {
	Send(ctx context.Context, pattern string, payload, out any) error
}

// RPCClient registers users over the message transport.
type RPCClient struct {
	sender  Sender
	pattern string
}

var _ domain.AuthService = (*RPCClient)(nil)

// NewRPCClient creates an RPCClient sending pattern (DefaultRegisterPattern when empty).
func NewRPCClient(sender Sender, pattern string) *RPCClient {
	if pattern == "" {
		pattern = DefaultRegisterPattern
	}
	return &RPCClient{sender: sender, pattern: pattern}
}

// RegisterUser sends the registration and returns the issued session. Error
// replies reach the caller as returned by the sender.
func (c *RPCClient) RegisterUser(ctx context.Context, in domain.RegisterUserRequest) (*domain.AuthSession, error) {
	var reply registerReply
	if err := c.sender.Send(ctx, c.pattern, in, &reply); err != nil {
		return nil, fmt.Errorf("%s: %w", c.pattern, err)
	}
	token := reply.token()
	if token == "" {
		return nil, ErrEmptyToken
	}
	return &domain.AuthSession{Token: token}, nil
}
