package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/pkg"
)

// UserHandler handles REST API requests for the user resource.
type UserHandler struct {
	registrar domain.UserRegistrar
	directory domain.UserDirectory
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(reg domain.UserRegistrar, dir domain.UserDirectory) *UserHandler {
	return &UserHandler{registrar: reg, directory: dir}
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	result, err := h.registrar.Create(c.Request.Context(), req.toInput())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Created(c, result)
}

// Get handles GET /api/v1/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.directory.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) {
	page, err := h.directory.FindAll(c.Request.Context(), pkg.ParsePaginationRequest(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, page)
}

// Update handles PATCH /api/v1/users/:id. The path id wins over any id in the body.
func (h *UserHandler) Update(c *gin.Context) {
	var req UpdateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	user, err := h.directory.Update(c.Request.Context(), id, req.toInput(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// Delete handles DELETE /api/v1/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	user, err := h.directory.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}
