package user

import "github.com/simp-lee/usersvc/internal/domain"

// CreateUserRequest represents the input for creating a new user.
type CreateUserRequest struct {
	Name     string `json:"name" form:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,strongpassword"`
	Status   *bool  `json:"status" form:"status"`
}

func (r CreateUserRequest) toInput() domain.CreateUserInput {
	return domain.CreateUserInput{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Status:   r.Status,
	}
}

// UpdateUserRequest represents a partial update of an existing user.
// An id in the body is accepted but never applied.
type UpdateUserRequest struct {
	ID     string  `json:"id" form:"id"`
	Name   *string `json:"name" form:"name" binding:"omitempty,min=1,max=100"`
	Email  *string `json:"email" form:"email" binding:"omitempty,email"`
	Status *bool   `json:"status" form:"status"`
}

func (r UpdateUserRequest) toInput(id string) domain.UpdateUserInput {
	return domain.UpdateUserInput{
		ID:     id,
		Name:   r.Name,
		Email:  r.Email,
		Status: r.Status,
	}
}
