package user

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/pkg"
	"github.com/simp-lee/usersvc/internal/transport/rpc"
)

// Message patterns served by the user module.
const (
	PatternCreate  = "create_user"
	PatternFindAll = "find_all_user"
	PatternFindOne = "find_one_user"
	PatternUpdate  = "update_user"
	PatternDelete  = "delete_user"
)

type idPayload struct {
	ID string `json:"id" validate:"required"`
}

// UserPatterns serves the user message patterns.
type UserPatterns struct {
	registrar  domain.UserRegistrar
	directory  domain.UserDirectory
	dispatcher *rpc.Dispatcher
}

// NewUserPatterns creates the message handlers. Payloads are bound with d.
func NewUserPatterns(reg domain.UserRegistrar, dir domain.UserDirectory, d *rpc.Dispatcher) *UserPatterns {
	return &UserPatterns{registrar: reg, directory: dir, dispatcher: d}
}

// Register installs every user pattern on the dispatcher.
func (p *UserPatterns) Register() {
	p.dispatcher.Handle(PatternCreate, p.create)
	p.dispatcher.Handle(PatternFindAll, p.findAll)
	p.dispatcher.Handle(PatternFindOne, p.findOne)
	p.dispatcher.Handle(PatternUpdate, p.update)
	p.dispatcher.Handle(PatternDelete, p.remove)
}

func (p *UserPatterns) create(ctx context.Context, payload json.RawMessage) (any, error) {
	var in domain.CreateUserInput
	if err := p.dispatcher.Bind(payload, &in); err != nil {
		return nil, err
	}
	return p.registrar.Create(ctx, in)
}

// findAll defaults only the fields the payload leaves out; an explicit zero is
// passed on and rejected by the directory.
func (p *UserPatterns) findAll(ctx context.Context, payload json.RawMessage) (any, error) {
	req := pkg.DefaultPagination()
	if err := p.dispatcher.Bind(payload, &req); err != nil {
		return nil, err
	}
	return p.directory.FindAll(ctx, pkg.CapLimit(req))
}

func (p *UserPatterns) findOne(ctx context.Context, payload json.RawMessage) (any, error) {
	id, err := p.bindID(payload)
	if err != nil {
		return nil, err
	}
	return p.directory.FindOne(ctx, id)
}

func (p *UserPatterns) update(ctx context.Context, payload json.RawMessage) (any, error) {
	var in domain.UpdateUserInput
	if err := p.dispatcher.Bind(payload, &in); err != nil {
		return nil, err
	}
	return p.directory.Update(ctx, in.ID, in)
}

func (p *UserPatterns) remove(ctx context.Context, payload json.RawMessage) (any, error) {
	id, err := p.bindID(payload)
	if err != nil {
		return nil, err
	}
	return p.directory.Remove(ctx, id)
}

// bindID accepts either {"id": "..."} or a bare JSON string.
func (p *UserPatterns) bindID(payload json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		id, err := rpc.Payload[string](trimmed)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", domain.NewAppError(domain.CodeValidation, "id is required", nil)
		}
		return id, nil
	}
	var in idPayload
	if err := p.dispatcher.Bind(payload, &in); err != nil {
		return "", err
	}
	return in.ID, nil
}
