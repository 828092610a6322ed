// Package router assembles the HTTP surface. The API binary and the
// end-to-end tests both build the engine through here so routing and
// middleware stay identical.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kennethcanega/userdesk/internal/middleware"
	"github.com/kennethcanega/userdesk/internal/modules/auth"
	"github.com/kennethcanega/userdesk/internal/modules/users"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
)

type Deps struct {
	Log            *logger.Logger
	Auth           *auth.Handler
	Users          *users.Handler
	AuthMW         gin.HandlerFunc
	AllowedOrigins []string
}

func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(middleware.CORS(d.AllowedOrigins))

	d.Auth.RegisterRoutes(&r.RouterGroup)

	protected := r.Group("/")
	protected.Use(d.AuthMW)

	ug := protected.Group("/users")
	ug.GET("/search", d.Users.Search)
	ug.GET("/me", d.Users.Me)

	admin := ug.Group("")
	admin.Use(middleware.AdminOnly())
	admin.GET("", d.Users.List)
	admin.POST("", d.Users.Create)
	admin.PUT("/:id", d.Users.Update)
	admin.DELETE("/:id", d.Users.Delete)

	return r
}
