package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/pkg"
)

// Handler serves one message pattern. The returned value is encoded as the
// reply data.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Dispatcher routes messages to handlers by pattern.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	validate *validator.Validate
}

// NewDispatcher creates a Dispatcher that validates bound payloads with v.
// A nil v gets a fresh validator with the custom validations installed.
func NewDispatcher(v *validator.Validate) *Dispatcher {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
		if err := pkg.RegisterValidations(v); err != nil {
			panic(err)
		}
	}
	return &Dispatcher{handlers: make(map[string]Handler), validate: v}
}

// Handle registers h for pattern. It panics on an empty pattern, a nil
// handler or a duplicate registration.
func (d *Dispatcher) Handle(pattern string, h Handler) {
	if pattern == "" {
		panic("rpc: empty pattern")
	}
	if h == nil {
		panic("rpc: nil handler for pattern " + pattern)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[pattern]; exists {
		panic("rpc: multiple registrations for pattern " + pattern)
	}
	d.handlers[pattern] = h
}

// Patterns returns the registered patterns in sorted order.
func (d *Dispatcher) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for p := range d.handlers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs the handler registered for pattern.
func (d *Dispatcher) Dispatch(ctx context.Context, pattern string, payload json.RawMessage) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[pattern]
	d.mu.RUnlock()
	if !ok {
		return nil, &domain.AppError{
			Code:    domain.CodeNotFound,
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("There is no matching message handler defined in the remote service for pattern %q", pattern),
		}
	}
	return h(ctx, payload)
}

// Bind decodes payload into out and validates it. Failures are validation
// errors reported with a 400 status.
func (d *Dispatcher) Bind(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &domain.AppError{
			Code:    domain.CodeValidation,
			Status:  http.StatusBadRequest,
			Message: "invalid payload",
			Err:     err,
		}
	}
	if err := d.validate.Struct(out); err != nil {
		return &domain.AppError{
			Code:    domain.CodeValidation,
			Status:  http.StatusBadRequest,
			Message: validationMessage(err, out),
			Err:     err,
		}
	}
	return nil
}

// validationMessage renders field errors as "email must be a valid email address; ...".
func validationMessage(err error, obj any) string {
	fields := pkg.FieldErrors(err, obj)
	if len(fields) == 0 {
		return domain.ErrValidation.Message
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+fields[name])
	}
	return strings.Join(parts, "; ")
}

// Payload decodes a scalar or object payload into T without validation.
func Payload[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, &domain.AppError{
			Code:    domain.CodeValidation,
			Status:  http.StatusBadRequest,
			Message: "invalid payload",
			Err:     err,
		}
	}
	return v, nil
}
