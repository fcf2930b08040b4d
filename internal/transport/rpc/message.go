// Package rpc implements a request/reply message transport on Redis Streams.
//
// A request is a stream entry whose "message" field holds a JSON Request. The
// server answers on the stream named by ReplyTo with a JSON Reply in the same
// field.
package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/simp-lee/usersvc/internal/domain"
)

const messageField = "message"

// Request is a pattern-addressed message.
type Request struct {
	ID      string          `json:"id"`
	Pattern string          `json:"pattern"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
}

// Reply answers a Request. Exactly one of Data and Error is set.
type Reply struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the wire form of a failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// NewErrorBody maps err to its wire form. Errors that are not a
// *domain.AppError are reported as an opaque internal error.
func NewErrorBody(err error) *ErrorBody {
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code == domain.CodeInternal {
		return &ErrorBody{Message: domain.ErrInternal.Message, Status: http.StatusInternalServerError}
	}
	return &ErrorBody{Message: appErr.Message, Status: domain.HTTPStatusCode(appErr)}
}

// Err converts the body back into a domain remote error.
func (b *ErrorBody) Err() error {
	return domain.NewRemoteError(b.Status, b.Message)
}
