// Package authclient talks to the remote auth service that owns credentials
// and issues session tokens.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/simp-lee/usersvc/internal/domain"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrEmptyToken is returned when the auth service answers without a token.
var ErrEmptyToken = errors.New("auth service returned an empty token")

// HTTPConfig locates the registration endpoint.
type HTTPConfig struct {
	BaseURL      string
	RegisterPath string
}

// HTTPClient registers users through the auth service's HTTP API.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

var _ domain.AuthService = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient using client for transport.
func NewHTTPClient(cfg HTTPConfig, client *http.Client, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{cfg: cfg, client: client, logger: logger}
}

// RegisterUser posts the registration and returns the issued session.
// A non-2xx answer becomes a domain remote error carrying the service's
// status and message.
func (c *HTTPClient) RegisterUser(ctx context.Context, in domain.RegisterUserRequest) (*domain.AuthSession, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal register request: %w", err)
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.RegisterPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request failed: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			c.logger.WarnContext(ctx, "failed to close response body", slog.Any("error", err))
		}
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, domain.NewRemoteError(res.StatusCode, errorMessage(raw, res.StatusCode))
	}

	var reply registerReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	token := reply.token()
	if token == "" {
		return nil, ErrEmptyToken
	}
	return &domain.AuthSession{Token: token}, nil
}

// registerReply accepts both a bare {"token"} body and the {"data":{"token"}} envelope.
type registerReply struct {
	Token string `json:"token"`
	Data  *struct {
		Token string `json:"token"`
	} `json:"data"`
}

func (r registerReply) token() string {
	if r.Token != "" {
		return r.Token
	}
	if r.Data != nil {
		return r.Data.Token
	}
	return ""
}

// errorMessage extracts "message" from an error body. The field may be a
// string or a list of strings; anything else falls back to the status text.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var s string
		if json.Unmarshal(body.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(body.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("auth service returned status %d", status)
}
