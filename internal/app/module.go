package app

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usersvc/internal/transport/rpc"
)

// Module defines the contract for a self-registering business module.
// Each module registers its REST routes and its message patterns.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
	RegisterPatterns(d *rpc.Dispatcher)
}
