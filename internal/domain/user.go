package domain

import "context"

// User represents a user in the directory. Status false marks a soft-deleted user.
type User struct {
	BaseModel
	Name   string `gorm:"size:100;not null" json:"name"`
	Email  string `gorm:"size:255;not null;index" json:"email"`
	Status bool   `gorm:"not null" json:"status"`
}

// CreateUserInput is the payload of a user registration. Password is forwarded
// to the auth service and never stored. A nil Status means active.
type CreateUserInput struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
	Status   *bool  `json:"status,omitempty"`
}

// UpdateUserInput is a partial update. ID identifies the target record and is
// never written; nil fields are left untouched.
type UpdateUserInput struct {
	ID     string  `json:"id" validate:"required"`
	Name   *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
	Status *bool   `json:"status,omitempty"`
}

// Fields returns the columns to write for this patch. The id is never included.
func (in UpdateUserInput) Fields() map[string]any {
	fields := make(map[string]any, 3)
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.Status != nil {
		fields["status"] = *in.Status
	}
	return fields
}

// RegisteredUser is the result of a successful registration.
type RegisteredUser struct {
	Data  *User  `json:"data"`
	Token string `json:"token"`
}

// RegisterUserRequest is sent to the auth service when a user is created.
type RegisterUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AuthSession is the auth service's answer to a registration. Token is opaque.
type AuthSession struct {
	Token string `json:"token"`
}

// UserStore is the persistence interface for users.
//
// FindFirst returns (nil, nil) when no user matches. Update returns an error
// satisfying IsNotFound when no row was updated.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	FindFirst(ctx context.Context, id string) (*User, error)
	FindMany(ctx context.Context, skip, take int) ([]User, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, fields map[string]any) (*User, error)
}

// AuthService is the remote auth collaborator.
type AuthService interface {
	RegisterUser(ctx context.Context, req RegisterUserRequest) (*AuthSession, error)
}

// UserEvents receives notifications about user lifecycle changes.
type UserEvents interface {
	UserCreated(ctx context.Context, user *User)
	UserUpdated(ctx context.Context, user *User)
	UserDeleted(ctx context.Context, user *User)
}

// UserDirectory owns read, update and soft-delete access to users.
type UserDirectory interface {
	Create(ctx context.Context, name, email string, status bool) (*User, error)
	FindAll(ctx context.Context, req PaginationRequest) (*Page[User], error)
	FindOne(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, id string, patch UpdateUserInput) (*User, error)
	Remove(ctx context.Context, id string) (*User, error)
}

// UserRegistrar creates users across the auth service and the local directory.
type UserRegistrar interface {
	Create(ctx context.Context, input CreateUserInput) (*RegisteredUser, error)
}
