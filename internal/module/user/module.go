package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/transport/rpc"
)

// UserModule implements the app.Module interface for the user domain.
type UserModule struct {
	registrar domain.UserRegistrar
	directory domain.UserDirectory
	handler   *UserHandler
}

// NewModule creates a new UserModule.
// Panics if reg or dir is nil.
func NewModule(reg domain.UserRegistrar, dir domain.UserDirectory) *UserModule {
	if reg == nil {
		panic("user.NewModule: registrar must not be nil")
	}
	if dir == nil {
		panic("user.NewModule: directory must not be nil")
	}
	return &UserModule{
		registrar: reg,
		directory: dir,
		handler:   NewUserHandler(reg, dir),
	}
}

// RegisterRoutes registers the user REST routes.
func (m *UserModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/users", m.handler.Create)
	api.GET("/users", m.handler.List)
	api.GET("/users/:id", m.handler.Get)
	api.PATCH("/users/:id", m.handler.Update)
	api.DELETE("/users/:id", m.handler.Delete)
}

// RegisterPatterns registers the user message patterns on d.
func (m *UserModule) RegisterPatterns(d *rpc.Dispatcher) {
	NewUserPatterns(m.registrar, m.directory, d).Register()
}
